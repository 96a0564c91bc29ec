// Package config loads client settings from an optional YAML file and
// command line flags. Flags win over the file, the file wins over defaults.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"slices"
	"time"

	"github.com/adwski/realtime-session/backend/client/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Channel     ChannelConfig `yaml:"channel"`
	API         APIConfig     `yaml:"api"`
	Session     SessionConfig `yaml:"session"`
	MetricsAddr string        `yaml:"metrics_addr"`
	LogLevel    string        `yaml:"log_level"`
}

type ChannelConfig struct {
	URL               string            `yaml:"url"`
	WithCredentials   bool              `yaml:"with_credentials"`
	Cookies           map[string]string `yaml:"cookies"`
	BufferSize        int               `yaml:"buffer_size"`
	InboundBufferSize int               `yaml:"inbound_buffer_size"`
	PingInterval      time.Duration     `yaml:"ping_interval"`
	PongWait          time.Duration     `yaml:"pong_wait"`
	WriteTimeout      time.Duration     `yaml:"write_timeout"`
	Reconnect         bool              `yaml:"reconnect"`
	ReconnectAttempts uint64            `yaml:"reconnect_attempts"`
	ReconnectDelay    time.Duration     `yaml:"reconnect_delay"`
	ReconnectDelayMax time.Duration     `yaml:"reconnect_delay_max"`
	EmitRate          float64           `yaml:"emit_rate"`
	EmitBurst         int               `yaml:"emit_burst"`
}

type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type SessionConfig struct {
	RoomID string `yaml:"room_id"`
	UserID string `yaml:"user_id"`
}

// Default returns the settings used when neither file nor flags say otherwise.
func Default() *Config {
	return &Config{
		Channel: ChannelConfig{
			URL:             websocket.DefaultURL,
			WithCredentials: true,
			Reconnect:       true,
		},
		LogLevel: "info",
	}
}

// Load reads path on top of Default, expanding ${VAR} references. An empty
// path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err = yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	return cfg, nil
}

// RegisterFlags declares every flag ApplyFlags understands.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "path to yaml config file")
	fs.StringP("url", "u", websocket.DefaultURL, "realtime channel websocket url")
	fs.StringP("api-url", "a", "", "REST api base url, room join over REST is skipped when empty")
	fs.StringP("room-id", "r", "", "room to join over REST")
	fs.StringP("user-id", "i", "", "user id announced over the channel")
	fs.StringToString("cookie", nil, "cookies sent on handshake, name=value")
	fs.Bool("with-credentials", true, "send cookies on the websocket handshake")
	fs.Bool("reconnect", true, "reconnect when the channel drops")
	fs.StringP("metrics-addr", "m", "", "listen address for /metrics and /healthz, disabled when empty")
	fs.StringP("log-level", "l", "info", "log level")
}

// ApplyFlags copies explicitly set flags over the loaded values.
func (cfg *Config) ApplyFlags(fs *pflag.FlagSet) error {
	var errs []error
	str := func(name string, dst *string) {
		if !fs.Changed(name) {
			return
		}
		v, err := fs.GetString(name)
		errs = append(errs, err)
		*dst = v
	}
	boolean := func(name string, dst *bool) {
		if !fs.Changed(name) {
			return
		}
		v, err := fs.GetBool(name)
		errs = append(errs, err)
		*dst = v
	}

	str("url", &cfg.Channel.URL)
	str("api-url", &cfg.API.BaseURL)
	str("room-id", &cfg.Session.RoomID)
	str("user-id", &cfg.Session.UserID)
	str("metrics-addr", &cfg.MetricsAddr)
	str("log-level", &cfg.LogLevel)
	boolean("with-credentials", &cfg.Channel.WithCredentials)
	boolean("reconnect", &cfg.Channel.Reconnect)

	if fs.Changed("cookie") {
		cookies, err := fs.GetStringToString("cookie")
		errs = append(errs, err)
		if cfg.Channel.Cookies == nil {
			cfg.Channel.Cookies = make(map[string]string, len(cookies))
		}
		for k, v := range cookies {
			cfg.Channel.Cookies[k] = v
		}
	}
	return errors.Join(errs...)
}

func (cfg *Config) Validate() error {
	var errs []error
	if cfg.Channel.URL == "" {
		errs = append(errs, errors.New("channel.url is required"))
	}
	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if cfg.Channel.BufferSize < 0 || cfg.Channel.InboundBufferSize < 0 {
		errs = append(errs, errors.New("channel buffer sizes must not be negative"))
	}
	if cfg.Channel.EmitRate < 0 {
		errs = append(errs, errors.New("channel.emit_rate must not be negative"))
	}
	if cfg.Channel.ReconnectDelayMax > 0 && cfg.Channel.ReconnectDelayMax < cfg.Channel.ReconnectDelay {
		errs = append(errs, errors.New("channel.reconnect_delay_max must not be less than reconnect_delay"))
	}
	if cfg.Session.RoomID != "" && cfg.API.BaseURL == "" {
		errs = append(errs, errors.New("session.room_id needs api.base_url"))
	}
	return errors.Join(errs...)
}

// WebsocketConfig builds the channel settings.
func (cfg *Config) WebsocketConfig(logger *zerolog.Logger, reg prometheus.Registerer) websocket.Config {
	c := cfg.Channel
	names := make([]string, 0, len(c.Cookies))
	for name := range c.Cookies {
		names = append(names, name)
	}
	slices.Sort(names)
	cookies := make([]*http.Cookie, 0, len(names))
	for _, name := range names {
		cookies = append(cookies, &http.Cookie{Name: name, Value: c.Cookies[name]})
	}

	return websocket.Config{
		Logger:            logger,
		Registry:          reg,
		URL:               c.URL,
		WithCredentials:   c.WithCredentials,
		Cookies:           cookies,
		BufferSize:        c.BufferSize,
		InboundBufferSize: c.InboundBufferSize,
		PingInterval:      c.PingInterval,
		PongWait:          c.PongWait,
		WriteTimeout:      c.WriteTimeout,
		Reconnect:         c.Reconnect,
		ReconnectAttempts: c.ReconnectAttempts,
		ReconnectDelay:    c.ReconnectDelay,
		ReconnectDelayMax: c.ReconnectDelayMax,
		EmitRate:          c.EmitRate,
		EmitBurst:         c.EmitBurst,
	}
}
