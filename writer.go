package rtmp

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/livepush/rtmp/metrics"
)

// ackWaitPollInterval is how often the writer re-checks the unacknowledged
// byte count while the ack window is exhausted.
const ackWaitPollInterval = 100 * time.Millisecond

// writer serializes messages into chunks and funnels them to the transport.
// A single send may be in flight at a time; re-entrant sends fail with
// ErrBusy. Before each non-forced send the writer applies ack-window
// backpressure: once the unacknowledged byte count passes 1.2 times the
// window, it blocks until the server acknowledges or the ack-wait deadline
// fires.
type writer struct {
	conn   *timeoutConn
	logger *zap.Logger

	chunkSize      uint32
	writeTimeout   time.Duration
	ackWaitTimeout time.Duration

	busy              int32
	ackWindow         uint32
	bytesSentTotal    uint64
	bytesSentSinceAck uint32
}

func newWriter(conn *timeoutConn, logger *zap.Logger, chunkSize uint32, ackWindow uint32, writeTimeout, ackWaitTimeout time.Duration) *writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &writer{
		conn:           conn,
		logger:         logger,
		chunkSize:      chunkSize,
		writeTimeout:   writeTimeout,
		ackWaitTimeout: ackWaitTimeout,
		ackWindow:      ackWindow,
	}
}

// send writes one fully serialized message. Forced sends skip the ack-window
// check; they are reserved for control responses that must go out even when
// the window is exhausted.
func (w *writer) send(message []byte, force bool) error {
	if !atomic.CompareAndSwapInt32(&w.busy, 0, 1) {
		return ErrBusy
	}
	defer atomic.StoreInt32(&w.busy, 0)

	if !force {
		if err := w.waitForAckWindow(); err != nil {
			return err
		}
	}

	if err := w.conn.Write(message, w.writeTimeout); err != nil {
		return err
	}
	atomic.AddUint64(&w.bytesSentTotal, uint64(len(message)))
	atomic.AddUint32(&w.bytesSentSinceAck, uint32(len(message)))
	metrics.BytesSent.Add(float64(len(message)))
	w.logger.Debug("message sent", zap.Int("bytes", len(message)))
	return nil
}

// sendChunked splits payload into chunks of at most chunkSize bytes. The
// caller supplies the leading type-0 or type-1 header; continuations get a
// type-3 basic header. The whole chunk train is serialized into one buffer
// and handed to the transport in a single write, so no other message can
// interleave and the ack-window check never splits a payload.
func (w *writer) sendChunked(leadingHeader []byte, csid uint8, payload []byte, force bool) error {
	continuation, err := type3Header(csid)
	if err != nil {
		return err
	}

	chunkSize := int(w.chunkSize)
	chunkCount := 1
	if len(payload) > chunkSize {
		chunkCount += (len(payload) - 1) / chunkSize
	}

	message := make([]byte, 0, len(leadingHeader)+len(payload)+chunkCount-1)
	message = append(message, leadingHeader...)
	for offset := 0; offset < len(payload); offset += chunkSize {
		if offset > 0 {
			message = append(message, continuation)
		}
		end := offset + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		message = append(message, payload[offset:end]...)
	}
	return w.send(message, force)
}

// waitForAckWindow blocks while the unacknowledged byte count sits past 1.2
// times the ack window, until it drops below the window itself or the
// ack-wait deadline passes. The counter is polled: the reader goroutine
// resets it when the server's acknowledgement arrives.
func (w *writer) waitForAckWindow() error {
	window := atomic.LoadUint32(&w.ackWindow)
	if window == 0 {
		return nil
	}
	threshold := window + window/5
	if atomic.LoadUint32(&w.bytesSentSinceAck) < threshold {
		return nil
	}

	w.logger.Debug("ack window exhausted, waiting",
		zap.Uint32("window", window),
		zap.Uint32("unacknowledged", atomic.LoadUint32(&w.bytesSentSinceAck)))

	deadline := time.Now().Add(w.ackWaitTimeout)
	for atomic.LoadUint32(&w.bytesSentSinceAck) >= window {
		if w.ackWaitTimeout > 0 && !time.Now().Before(deadline) {
			return ErrAckTimeout
		}
		time.Sleep(ackWaitPollInterval)
	}
	return nil
}

// ackReceived resets the unacknowledged byte count. Called from the reader
// goroutine when the server's Acknowledgement message arrives.
func (w *writer) ackReceived() {
	atomic.StoreUint32(&w.bytesSentSinceAck, 0)
}

func (w *writer) setAckWindow(size uint32) {
	atomic.StoreUint32(&w.ackWindow, size)
}

func (w *writer) getAckWindow() uint32 {
	return atomic.LoadUint32(&w.ackWindow)
}

func (w *writer) unacknowledged() uint32 {
	return atomic.LoadUint32(&w.bytesSentSinceAck)
}

func (w *writer) totalBytesSent() uint64 {
	return atomic.LoadUint64(&w.bytesSentTotal)
}
