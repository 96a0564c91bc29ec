package websocket

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	// DefaultURL is the signaling endpoint used when none is configured.
	DefaultURL = "ws://192.168.1.10:5000/ws"

	defaultBufferSize        = 256
	defaultInboundBufferSize = 256

	defaultWebsocketReadBufferSize     = 10000
	defaultWebsocketWriteBufferSize    = 10000
	defaultWebSocketMaxMessageSize     = 9000
	defaultWebSocketHandshakeTimeout   = 3 * time.Second
	defaultWebSocketCloseWriteDeadline = 2 * time.Second
	defaultWebSocketWriteDeadline      = 5 * time.Second

	// defaultPongWait - defaultPingInterval == is how long we give server to respond
	defaultPingInterval = 5 * time.Second
	defaultPongWait     = 7 * time.Second

	defaultReconnectDelay    = time.Second
	defaultReconnectDelayMax = 5 * time.Second
)

var (
	ErrInvalidURL = errors.New("invalid channel url")
)

// Config holds channel construction parameters. Zero values fall back to defaults,
// except Reconnect which has to be set explicitly.
type Config struct {
	Logger   *zerolog.Logger
	Registry prometheus.Registerer

	URL             string
	WithCredentials bool
	Cookies         []*http.Cookie
	Header          http.Header

	BufferSize        int
	InboundBufferSize int

	PingInterval time.Duration
	PongWait     time.Duration
	WriteTimeout time.Duration

	Reconnect         bool
	ReconnectAttempts uint64
	ReconnectDelay    time.Duration
	ReconnectDelayMax time.Duration

	// EmitRate limits outbound events per second, 0 means unlimited.
	EmitRate  float64
	EmitBurst int
}

func (cfg *Config) applyDefaults() {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.InboundBufferSize <= 0 {
		cfg.InboundBufferSize = defaultInboundBufferSize
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongWait <= cfg.PingInterval {
		cfg.PongWait = cfg.PingInterval + defaultPongWait - defaultPingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWebSocketWriteDeadline
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.ReconnectDelayMax < cfg.ReconnectDelay {
		cfg.ReconnectDelayMax = max(defaultReconnectDelayMax, cfg.ReconnectDelay)
	}
	if cfg.EmitRate > 0 && cfg.EmitBurst <= 0 {
		cfg.EmitBurst = 1
	}
}

func parseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Join(ErrInvalidURL, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, errors.Join(ErrInvalidURL, errors.New("scheme must be ws or wss"))
	}
	if u.Host == "" {
		return nil, errors.Join(ErrInvalidURL, errors.New("missing host"))
	}
	return u, nil
}

// cookieURL maps a websocket url onto the http url the handshake is made against,
// which is what the cookie jar keys on.
func cookieURL(u *url.URL) *url.URL {
	cu := *u
	if cu.Scheme == "wss" {
		cu.Scheme = "https"
	} else {
		cu.Scheme = "http"
	}
	return &cu
}
