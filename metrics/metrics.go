package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtmp_publisher_bytes_sent_total",
		Help: "Bytes handed to the transport, including chunk headers.",
	})

	BytesRead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtmp_publisher_bytes_read_total",
		Help: "Bytes consumed from the transport, including chunk headers.",
	})

	VideoFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtmp_publisher_video_frames_total",
		Help: "H.264 frames posted, sequence headers included.",
	})

	AudioFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtmp_publisher_audio_frames_total",
		Help: "AAC frames posted; the sequence header sent ahead of the first frame is not counted.",
	})

	AcksSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtmp_publisher_acks_sent_total",
		Help: "Acknowledgement messages emitted to the server.",
	})

	AcksReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtmp_publisher_acks_received_total",
		Help: "Acknowledgement messages received from the server.",
	})
)
