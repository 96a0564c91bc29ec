// Package websocket implements the realtime channel: one long-lived websocket
// connection to the signaling endpoint with a buffered, fire-and-forget outbound path.
package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/adwski/realtime-session/backend/model"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const channelIDHeader = "X-Channel-Id"

var (
	ErrClosed          = errors.New("channel is closed")
	ErrBufferFull      = errors.New("outbound buffer is full")
	ErrDial            = errors.New("unable to connect")
	ErrDisconnected    = errors.New("channel disconnected")
	ErrReconnectFailed = errors.New("reconnect attempts exhausted")
)

// Channel is a shared, bidirectional event connection. It is created by the
// composition root and handed by reference to whoever needs to emit events.
type Channel struct {
	id      string
	url     *url.URL
	cfg     Config
	dialer  *websocket.Dialer
	header  http.Header
	jar     http.CookieJar
	limiter *rate.Limiter
	metrics *metrics
	logger  zerolog.Logger

	queue   chan model.Event
	inbound chan model.Event
	done    chan struct{}

	mx        *sync.RWMutex
	connected bool
	closed    bool
}

func New(cfg Config) (*Channel, error) {
	cfg.applyDefaults()
	u, err := parseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		nop := zerolog.Nop()
		cfg.Logger = &nop
	}

	id := uuid.NewString()
	ch := &Channel{
		id:  id,
		url: u,
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultWebSocketHandshakeTimeout,
			ReadBufferSize:   defaultWebsocketReadBufferSize,
			WriteBufferSize:  defaultWebsocketWriteBufferSize,
		},
		header: cfg.Header.Clone(),
		logger: cfg.Logger.With().
			Str("component", "channel").
			Str("channelID", id).
			Logger(),
		queue:   make(chan model.Event, cfg.BufferSize),
		inbound: make(chan model.Event, cfg.InboundBufferSize),
		done:    make(chan struct{}),
		mx:      &sync.RWMutex{},
	}
	ch.metrics = newMetrics(cfg.Registry, id, &ch.logger)
	if ch.header == nil {
		ch.header = http.Header{}
	}
	ch.header.Set(channelIDHeader, id)

	if cfg.WithCredentials {
		jar, errJ := cookiejar.New(nil)
		if errJ != nil {
			return nil, errJ
		}
		if len(cfg.Cookies) > 0 {
			jar.SetCookies(cookieURL(u), cfg.Cookies)
		}
		ch.jar = jar
		ch.dialer.Jar = jar
	}
	if cfg.EmitRate > 0 {
		ch.limiter = rate.NewLimiter(rate.Limit(cfg.EmitRate), cfg.EmitBurst)
	}
	return ch, nil
}

func (ch *Channel) ID() string {
	return ch.id
}

func (ch *Channel) URL() string {
	return ch.url.String()
}

func (ch *Channel) WithCredentials() bool {
	return ch.cfg.WithCredentials
}

// Jar returns the cookie jar used for the handshake, nil without credentials.
func (ch *Channel) Jar() http.CookieJar {
	return ch.jar
}

func (ch *Channel) Connected() bool {
	ch.mx.RLock()
	defer ch.mx.RUnlock()
	return ch.connected
}

// Inbound returns events received from the endpoint. Events are dropped
// when nobody keeps up with reading.
func (ch *Channel) Inbound() <-chan model.Event {
	return ch.inbound
}

// Emit hands an event to the outbound buffer and returns without waiting for
// the wire. Events emitted while disconnected are flushed after (re)connect.
func (ch *Channel) Emit(event string, data any) error {
	ch.mx.RLock()
	defer ch.mx.RUnlock()
	if ch.closed {
		return ErrClosed
	}
	select {
	case ch.queue <- model.Event{Name: event, Data: data}:
		ch.metrics.emitted.WithLabelValues(event).Inc()
		return nil
	default:
		ch.metrics.dropped.WithLabelValues("buffer_full").Inc()
		ch.logger.Debug().Str("event", event).Msg("outbound buffer full, event dropped")
		return ErrBufferFull
	}
}

// Close stops Run and rejects further events. It is safe to call more than once.
func (ch *Channel) Close() error {
	ch.mx.Lock()
	defer ch.mx.Unlock()
	if ch.closed {
		return nil
	}
	ch.closed = true
	close(ch.done)
	return nil
}

// Run keeps the connection up until ctx is done or the channel is closed.
func (ch *Channel) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		ch.logger.Debug().Msg("channel stopped")
		wg.Done()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-ch.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	bo := ch.newBackOff()
	for {
		conn, err := ch.dial(ctx)
		if err == nil {
			bo.Reset()
			ch.serve(ctx, conn)
		} else if ctx.Err() == nil {
			ch.logger.Error().Err(err).Str("url", ch.URL()).Msg("failed to connect")
		}
		if ctx.Err() != nil {
			return
		}

		if !ch.cfg.Reconnect {
			report(ctx, errc, errors.Join(ErrDisconnected, err))
			return
		}
		delay := bo.NextBackOff()
		if delay == backoff.Stop {
			report(ctx, errc, errors.Join(ErrReconnectFailed, err))
			return
		}
		ch.metrics.reconnects.Inc()
		ch.logger.Debug().Dur("delay", delay).Msg("reconnecting")

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func report(ctx context.Context, errc chan<- error, err error) {
	select {
	case errc <- err:
	case <-ctx.Done():
	}
}

func (ch *Channel) newBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = ch.cfg.ReconnectDelay
	eb.MaxInterval = ch.cfg.ReconnectDelayMax
	eb.MaxElapsedTime = 0

	var bo backoff.BackOff = eb
	if ch.cfg.ReconnectAttempts > 0 {
		bo = backoff.WithMaxRetries(eb, ch.cfg.ReconnectAttempts)
	}
	bo.Reset()
	return bo
}

func (ch *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := ch.dialer.DialContext(ctx, ch.url.String(), ch.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, errors.Join(ErrDial, err)
	}
	return conn, nil
}

func (ch *Channel) setConnected(connected bool) {
	ch.mx.Lock()
	ch.connected = connected
	ch.mx.Unlock()
	if connected {
		ch.metrics.connected.Set(1)
	} else {
		ch.metrics.connected.Set(0)
	}
}

// serve runs sender and receiver over conn and returns once either of them stops.
func (ch *Channel) serve(ctx context.Context, conn *websocket.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch.setConnected(true)
	ch.logger.Info().Str("url", ch.URL()).Msg("channel connected")

	wg := &sync.WaitGroup{}
	wg.Add(2)
	go func() {
		ch.receiver(connCtx, wg, conn)
		cancel()
	}()
	go func() {
		ch.sender(connCtx, wg, conn)
		cancel()
	}()

	<-connCtx.Done()
	ch.setConnected(false)
	webSocketCloser(conn, &ch.logger)
	wg.Wait()
	ch.logger.Info().Msg("channel disconnected")
}
