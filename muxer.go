package rtmp

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/livepush/rtmp/config"
	"github.com/livepush/rtmp/metrics"
	"github.com/livepush/rtmp/rand"
)

type muxerState uint8

const (
	stateStopped muxerState = iota
	stateConnecting
	stateAwaitingConnect
	stateConnected
	stateAwaitingStream
	statePublishSent
	stateStreaming
)

func (s muxerState) String() string {
	switch s {
	case stateStopped:
		return "stopped"
	case stateConnecting:
		return "connecting"
	case stateAwaitingConnect:
		return "awaiting_connect"
	case stateConnected:
		return "connected"
	case stateAwaitingStream:
		return "awaiting_stream"
	case statePublishSent:
		return "publish_sent"
	case stateStreaming:
		return "streaming"
	}
	return "unknown"
}

// Muxer is a one-way RTMP publisher: it connects to a server, opens a
// publishing stream and transmits H.264 video and AAC audio frames with
// metadata. A Muxer handles a single publishing stream per connection and
// can be restarted after Stop.
//
// Public methods are meant to be called from one application goroutine.
// Lifecycle callbacks arrive on the internal reader goroutine and must not
// block.
type Muxer struct {
	host   string
	port   string
	clock  Clock
	logger *zap.Logger

	cfg config.Config

	mu       sync.Mutex
	state    muxerState
	listener ConnectionListener
	conn     *timeoutConn
	writer   *writer
	reader   *reader

	playpath    string
	streamID    uint32
	lastVideoTs int64
	lastAudioTs int64

	audioHeader     *AudioHeader
	audioHeaderSent bool

	peerLimit uint8

	pendingAck      bool
	pendingAckBytes uint32
	pendingPing     bool
	pendingPingTs   uint32
}

// NewMuxer builds a stopped Muxer talking to host:port. A nil clock falls
// back to the wall clock, a nil logger to a no-op one; timeouts, chunk size
// and ack window start at the protocol defaults.
func NewMuxer(host string, port string, clock Clock, logger *zap.Logger) *Muxer {
	return NewMuxerWithConfig(host, port, clock, config.Default(), logger)
}

// NewMuxerWithConfig builds a Muxer with explicit session parameters, e.g.
// loaded from a YAML file with config.Load.
func NewMuxerWithConfig(host string, port string, clock Clock, cfg config.Config, logger *zap.Logger) *Muxer {
	if clock == nil {
		clock = NewSystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if port == "" {
		port = config.DefaultPort
	}
	return &Muxer{
		host:        host,
		port:        port,
		clock:       clock,
		logger:      logger,
		cfg:         cfg,
		lastVideoTs: -1,
		lastAudioTs: -1,
		peerLimit:   LimitNotSet,
	}
}

func (m *Muxer) SetConnectTimeout(d time.Duration) error {
	return m.setTimeout(&m.cfg.ConnectTimeout, d)
}

func (m *Muxer) SetHandshakeTimeout(d time.Duration) error {
	return m.setTimeout(&m.cfg.HandshakeTimeout, d)
}

func (m *Muxer) SetWriteTimeout(d time.Duration) error {
	return m.setTimeout(&m.cfg.WriteTimeout, d)
}

func (m *Muxer) SetAckWaitTimeout(d time.Duration) error {
	return m.setTimeout(&m.cfg.AckWaitTimeout, d)
}

func (m *Muxer) setTimeout(target *time.Duration, d time.Duration) error {
	if d < 0 {
		return errors.Wrapf(ErrInvalidArgument, "negative timeout %s", d)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	*target = d
	return nil
}

// IsStarted reports whether the session left the stopped state and has not
// been torn down since.
func (m *Muxer) IsStarted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state != stateStopped
}

// Start opens the connection, performs the handshake, announces the chunk
// size and ack window, and sends the connect command. It returns once the
// connect command is on the wire; the server's answer arrives later as
// OnConnected. On error the session is torn down and the error returned.
func (m *Muxer) Start(listener ConnectionListener, app string, tcURL string, pageURL string) error {
	m.mu.Lock()
	if m.state != stateStopped {
		m.mu.Unlock()
		return errors.Wrapf(ErrInvalidState, "start in state %s", m.state)
	}
	m.state = stateConnecting
	m.listener = listener
	m.logger = m.logger.With(zap.String("session", rand.GenerateUuid()))
	m.mu.Unlock()

	if err := m.connect(app, tcURL, pageURL); err != nil {
		m.teardown()
		return err
	}
	return nil
}

func (m *Muxer) connect(app string, tcURL string, pageURL string) error {
	addr := net.JoinHostPort(m.host, m.port)
	m.logger.Info("connecting", zap.String("addr", addr), zap.String("app", app))

	conn, err := dialTimeout(addr, m.cfg.ConnectTimeout, m.logger)
	if err != nil {
		return err
	}

	src := bufio.NewReader(conn)
	handshake := &clientHandshake{
		conn:             conn,
		reader:           src,
		clock:            m.clock,
		handshakeTimeout: m.cfg.HandshakeTimeout,
		writeTimeout:     m.cfg.WriteTimeout,
	}
	if err := handshake.do(); err != nil {
		conn.Close()
		return err
	}

	w := newWriter(conn, m.logger, m.cfg.ChunkSize, m.cfg.AckWindowSize, m.cfg.WriteTimeout, m.cfg.AckWaitTimeout)
	r := newReader(src, m, m.logger)

	m.mu.Lock()
	m.conn = conn
	m.writer = w
	m.reader = r
	m.mu.Unlock()

	if err := w.send(generateSetChunkSizeMessage(m.cfg.ChunkSize), false); err != nil {
		return errors.Wrap(err, "announcing chunk size")
	}
	if err := w.send(generateWindowAckSizeMessage(m.cfg.AckWindowSize), false); err != nil {
		return errors.Wrap(err, "announcing ack window")
	}
	if err := w.send(generateConnectRequest(app, tcURL, pageURL), false); err != nil {
		return errors.Wrap(err, "sending connect")
	}

	m.mu.Lock()
	m.state = stateAwaitingConnect
	m.mu.Unlock()

	go r.run()
	return nil
}

// CreateStream asks the server for a message stream. The playpath is kept
// for the publish command that follows the server's answer; the session
// moves to streaming once the server confirms with NetStream.Publish.Start.
func (m *Muxer) CreateStream(playpath string) error {
	m.mu.Lock()
	if m.state != stateConnected {
		m.mu.Unlock()
		return errors.Wrapf(ErrInvalidState, "createStream in state %s", m.state)
	}
	m.playpath = playpath
	m.state = stateAwaitingStream
	w := m.writer
	m.mu.Unlock()

	if err := w.send(generateCreateStreamRequest(), false); err != nil {
		return m.fatal(errors.Wrap(err, "sending createStream"))
	}
	return nil
}

// SetAudioHeader registers the AAC stream description. The matching sequence
// header goes out ahead of the first audio frame.
func (m *Muxer) SetAudioHeader(header AudioHeader) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audioHeader = &header
	m.audioHeaderSent = false
}

// PostVideo sends one H.264 frame. Header frames carry the Annex-B SPS/PPS
// buffer and go out as the AVC sequence header in a single type-0 chunk;
// picture frames go out as NALU tags behind a type-1 header with the delta
// from the previous video timestamp, split into chunks as needed.
func (m *Muxer) PostVideo(frame VideoFrame) error {
	m.mu.Lock()
	if m.state != stateStreaming {
		m.mu.Unlock()
		return errors.Wrapf(ErrInvalidState, "postVideo in state %s", m.state)
	}
	w := m.writer
	streamID := m.streamID
	delta := timestampDelta(m.lastVideoTs, frame.Timestamp)
	m.lastVideoTs = frame.Timestamp
	m.mu.Unlock()

	if err := m.flushPending(); err != nil {
		if errors.Is(err, ErrBusy) {
			return err
		}
		return m.fatal(err)
	}

	var body []byte
	var header []byte
	var err error
	if frame.Header {
		body, err = avcSequenceHeader(frame.Payload)
		if err != nil {
			return err
		}
		header, err = type0Header(VideoChannel, uint32(frame.Timestamp), uint32(len(body)), VideoMessage, streamID)
	} else {
		body = avcVideoData(frame.Keyframe, frame.Payload)
		header, err = type1Header(VideoChannel, delta, uint32(len(body)), VideoMessage)
	}
	if err != nil {
		return err
	}

	if err := w.sendChunked(header, VideoChannel, body, false); err != nil {
		if errors.Is(err, ErrBusy) {
			return err
		}
		return m.fatal(errors.Wrap(err, "sending video"))
	}
	metrics.VideoFrames.Inc()
	return nil
}

// PostAudio sends one raw AAC frame. The first frame after SetAudioHeader is
// preceded by the AAC sequence header carrying the AudioSpecificConfig.
func (m *Muxer) PostAudio(frame AudioFrame) error {
	m.mu.Lock()
	if m.state != stateStreaming {
		m.mu.Unlock()
		return errors.Wrapf(ErrInvalidState, "postAudio in state %s", m.state)
	}
	if m.audioHeader == nil {
		m.mu.Unlock()
		return errors.Wrap(ErrInvalidState, "postAudio before SetAudioHeader")
	}
	w := m.writer
	streamID := m.streamID
	audioHeader := *m.audioHeader
	needHeader := !m.audioHeaderSent
	m.audioHeaderSent = true
	delta := timestampDelta(m.lastAudioTs, frame.Timestamp)
	m.lastAudioTs = frame.Timestamp
	m.mu.Unlock()

	if err := m.flushPending(); err != nil {
		if errors.Is(err, ErrBusy) {
			return err
		}
		return m.fatal(err)
	}

	if needHeader {
		body := aacSequenceHeader(audioHeader)
		header, err := type0Header(AudioChannel, uint32(frame.Timestamp), uint32(len(body)), AudioMessage, streamID)
		if err != nil {
			return err
		}
		if err := w.sendChunked(header, AudioChannel, body, false); err != nil {
			return m.fatal(errors.Wrap(err, "sending audio sequence header"))
		}
	}

	body := aacAudioData(audioHeader, frame.Payload)
	header, err := type1Header(AudioChannel, delta, uint32(len(body)), AudioMessage)
	if err != nil {
		return err
	}
	if err := w.sendChunked(header, AudioChannel, body, false); err != nil {
		if errors.Is(err, ErrBusy) {
			return err
		}
		return m.fatal(errors.Wrap(err, "sending audio"))
	}
	metrics.AudioFrames.Inc()
	return nil
}

// SendMetaData emits an onTextData event on the data channel.
func (m *Muxer) SendMetaData(text string) error {
	m.mu.Lock()
	if m.state != stateStreaming {
		m.mu.Unlock()
		return errors.Wrapf(ErrInvalidState, "sendMetaData in state %s", m.state)
	}
	w := m.writer
	streamID := m.streamID
	m.mu.Unlock()

	if err := w.send(generateTextDataMessage(text, streamID), false); err != nil {
		if errors.Is(err, ErrBusy) {
			return err
		}
		return m.fatal(errors.Wrap(err, "sending metadata"))
	}
	return nil
}

// SendDataFrame announces the stream properties with @setDataFrame.
func (m *Muxer) SendDataFrame(df DataFrame) error {
	m.mu.Lock()
	if m.state != stateStreaming {
		m.mu.Unlock()
		return errors.Wrapf(ErrInvalidState, "sendDataFrame in state %s", m.state)
	}
	w := m.writer
	streamID := m.streamID
	m.mu.Unlock()

	if err := w.send(generateDataFrameMessage(df, streamID), false); err != nil {
		if errors.Is(err, ErrBusy) {
			return err
		}
		return m.fatal(errors.Wrap(err, "sending data frame"))
	}
	return nil
}

// DeleteStream closes the publishing stream but keeps the connection open.
// Streaming-level state is reset; a new CreateStream reuses the session.
func (m *Muxer) DeleteStream() error {
	m.mu.Lock()
	if m.state != stateStreaming {
		m.mu.Unlock()
		return errors.Wrapf(ErrInvalidState, "deleteStream in state %s", m.state)
	}
	w := m.writer
	streamID := m.streamID
	m.resetStreamingState()
	m.state = stateConnected
	m.mu.Unlock()

	if err := w.send(generateDeleteStreamRequest(streamID), false); err != nil {
		return m.fatal(errors.Wrap(err, "sending deleteStream"))
	}
	return nil
}

// Stop tears the whole session down. It is safe to call in any state and
// more than once.
func (m *Muxer) Stop() {
	m.teardown()
}

// resetStreamingState clears the values tied to one publishing stream.
// Callers hold the mutex.
func (m *Muxer) resetStreamingState() {
	m.playpath = ""
	m.streamID = 0
	m.lastVideoTs = -1
	m.lastAudioTs = -1
	m.audioHeaderSent = false
	m.pendingAck = false
	m.pendingPing = false
}

// teardown closes the transport and returns to stopped. The reader is told
// first so the read error from the closing socket is not reported back.
func (m *Muxer) teardown() {
	m.mu.Lock()
	r := m.reader
	conn := m.conn
	m.reader = nil
	m.conn = nil
	m.writer = nil
	m.listener = nil
	m.resetStreamingState()
	m.audioHeader = nil
	m.peerLimit = LimitNotSet
	wasStopped := m.state == stateStopped
	m.state = stateStopped
	m.mu.Unlock()

	if wasStopped {
		return
	}
	if r != nil {
		r.stop()
	}
	if conn != nil {
		conn.Close()
	}
	m.logger.Info("session stopped")
}

// fatal tears the session down after a send failure and hands the error back
// to the caller.
func (m *Muxer) fatal(err error) error {
	m.logger.Error("session failed", zap.Error(err))
	m.teardown()
	return err
}

// flushPending emits the deferred Acknowledgement and ping response, in that
// order, before the next media payload. Forced sends keep control responses
// flowing even when the ack window is exhausted.
func (m *Muxer) flushPending() error {
	m.mu.Lock()
	ack, ackBytes := m.pendingAck, m.pendingAckBytes
	ping, pingTs := m.pendingPing, m.pendingPingTs
	m.pendingAck = false
	m.pendingPing = false
	w := m.writer
	m.mu.Unlock()

	if w == nil {
		return errors.Wrap(ErrInvalidState, "flushing control responses")
	}
	if ack {
		if err := w.send(generateAckMessage(ackBytes), true); err != nil {
			m.restorePending(ack, ackBytes, ping, pingTs)
			return errors.Wrap(err, "sending acknowledgement")
		}
		metrics.AcksSent.Inc()
	}
	if ping {
		if err := w.send(generatePingResponseMessage(pingTs), true); err != nil {
			m.restorePending(false, 0, ping, pingTs)
			return errors.Wrap(err, "sending ping response")
		}
	}
	return nil
}

// restorePending re-arms control responses that could not be flushed, so a
// rejected send does not swallow them.
func (m *Muxer) restorePending(ack bool, ackBytes uint32, ping bool, pingTs uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ack && !m.pendingAck {
		m.pendingAck = true
		m.pendingAckBytes = ackBytes
	}
	if ping && !m.pendingPing {
		m.pendingPing = true
		m.pendingPingTs = pingTs
	}
}

func timestampDelta(last int64, current int64) uint32 {
	if last < 0 || current < last {
		return 0
	}
	return uint32(current - last)
}

// Reader callbacks. These run on the reader goroutine.

func (m *Muxer) onAck(sequenceNumber uint32) {
	m.mu.Lock()
	w := m.writer
	m.mu.Unlock()
	if w != nil {
		w.ackReceived()
	}
	m.logger.Debug("acknowledgement received", zap.Uint32("sequence", sequenceNumber))
}

func (m *Muxer) onNeedAck(bytesReadTotal uint32) {
	m.mu.Lock()
	m.pendingAck = true
	m.pendingAckBytes = bytesReadTotal
	m.mu.Unlock()
}

// onPingRequest answers inline while the session is idle; while streaming
// the response is deferred so it lands before the next media payload
// instead of racing it.
func (m *Muxer) onPingRequest(timestamp uint32) {
	m.mu.Lock()
	streaming := m.state == stateStreaming
	if streaming {
		m.pendingPing = true
		m.pendingPingTs = timestamp
	}
	w := m.writer
	m.mu.Unlock()

	if streaming || w == nil {
		return
	}
	if err := w.send(generatePingResponseMessage(timestamp), true); err != nil {
		m.logger.Warn("inline ping response failed", zap.Error(err))
	}
}

func (m *Muxer) onSetWindowAckSize(size uint32) {
	m.logger.Debug("server ack window", zap.Uint32("size", size))
}

// onSetPeerBandwidth applies the server's bandwidth limit to the outbound
// ack window. Dynamic limits only apply when the previous limit was hard;
// soft limits only ever shrink the window. Any change is announced back
// with a Window Acknowledgement Size message.
func (m *Muxer) onSetPeerBandwidth(size uint32, limitType uint8) {
	m.mu.Lock()
	previous := m.peerLimit
	m.peerLimit = limitType
	w := m.writer
	m.mu.Unlock()

	if w == nil {
		return
	}

	effective := limitType
	if limitType == LimitDynamic {
		if previous != LimitHard {
			return
		}
		effective = LimitHard
	}

	current := w.getAckWindow()
	switch effective {
	case LimitHard:
		if size == current {
			return
		}
	case LimitSoft:
		if size >= current {
			return
		}
	default:
		m.logger.Warn("unknown peer bandwidth limit type", zap.Uint8("type", limitType))
		return
	}

	w.setAckWindow(size)
	m.logger.Debug("ack window updated", zap.Uint32("size", size))
	if err := w.send(generateWindowAckSizeMessage(size), true); err != nil {
		m.logger.Warn("announcing ack window failed", zap.Error(err))
	}
}

func (m *Muxer) onConnectSuccess() {
	m.mu.Lock()
	if m.state != stateAwaitingConnect {
		m.mu.Unlock()
		m.logger.Warn("unexpected connect result", zap.String("state", m.state.String()))
		return
	}
	m.state = stateConnected
	listener := m.listener
	m.mu.Unlock()

	m.logger.Info("connected")
	if listener != nil {
		listener.OnConnected()
	}
}

// onStreamCreated records the server-assigned stream ID and immediately
// publishes on it.
func (m *Muxer) onStreamCreated(streamID uint32) {
	m.mu.Lock()
	if m.state != stateAwaitingStream {
		m.mu.Unlock()
		m.logger.Warn("unexpected createStream result", zap.String("state", m.state.String()))
		return
	}
	m.streamID = streamID
	m.state = statePublishSent
	w := m.writer
	playpath := m.playpath
	m.mu.Unlock()

	m.logger.Info("stream created", zap.Uint32("streamID", streamID))
	if err := w.send(generatePublishRequest(playpath, streamID), true); err != nil {
		m.onReaderError(errors.Wrap(err, "sending publish"))
	}
}

func (m *Muxer) onPublishStart() {
	m.mu.Lock()
	if m.state != statePublishSent {
		m.mu.Unlock()
		m.logger.Warn("unexpected publish confirmation", zap.String("state", m.state.String()))
		return
	}
	m.state = stateStreaming
	listener := m.listener
	m.mu.Unlock()

	m.logger.Info("publishing")
	if listener != nil {
		listener.OnReadyToPublish()
	}
}

func (m *Muxer) onReaderError(err error) {
	m.mu.Lock()
	listener := m.listener
	m.mu.Unlock()

	m.logger.Error("session failed", zap.Error(err))
	m.teardown()
	if listener != nil {
		listener.OnConnectionError(err)
	}
}
