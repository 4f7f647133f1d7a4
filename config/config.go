package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const DefaultPort = "1935"

// Protocol defaults for a publishing session.
const (
	DefaultChunkSize     uint32 = 4096
	DefaultInChunkSize   uint32 = 128
	DefaultAckWindowSize uint32 = 5000000
)

// Transaction IDs the command sequence uses.
const (
	ConnectTransactionID      = 1
	CreateStreamTransactionID = 10
	PublishTransactionID      = 0
)

const (
	DefaultConnectTimeout   = 5000 * time.Millisecond
	DefaultHandshakeTimeout = 2500 * time.Millisecond
	DefaultWriteTimeout     = 10000 * time.Millisecond
	DefaultAckWaitTimeout   = 5000 * time.Millisecond
)

var ErrNegativeTimeout = errors.New("config: timeout must not be negative")

// Config carries the tunable session parameters. Load replaces zero values
// with the protocol defaults above; a Config built by hand is used as is.
type Config struct {
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	AckWaitTimeout   time.Duration `yaml:"ack_wait_timeout"`
	ChunkSize        uint32        `yaml:"chunk_size"`
	AckWindowSize    uint32        `yaml:"ack_window_size"`
}

// Default returns a Config populated with the protocol defaults.
func Default() Config {
	return Config{
		ConnectTimeout:   DefaultConnectTimeout,
		HandshakeTimeout: DefaultHandshakeTimeout,
		WriteTimeout:     DefaultWriteTimeout,
		AckWaitTimeout:   DefaultAckWaitTimeout,
		ChunkSize:        DefaultChunkSize,
		AckWindowSize:    DefaultAckWindowSize,
	}
}

// Load reads a YAML file and overlays it on the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config: reading %s", path)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, errors.Wrapf(err, "config: parsing %s", path)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.AckWaitTimeout == 0 {
		c.AckWaitTimeout = def.AckWaitTimeout
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = def.ChunkSize
	}
	if c.AckWindowSize == 0 {
		c.AckWindowSize = def.AckWindowSize
	}
}

// Validate rejects negative timeouts.
func (c Config) Validate() error {
	for _, d := range []time.Duration{c.ConnectTimeout, c.HandshakeTimeout, c.WriteTimeout, c.AckWaitTimeout} {
		if d < 0 {
			return ErrNegativeTimeout
		}
	}
	return nil
}
