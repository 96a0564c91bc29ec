package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/adwski/realtime-session/backend/model"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func (ch *Channel) sender(ctx context.Context, wg *sync.WaitGroup, conn *websocket.Conn) {
	pingTicker := time.NewTicker(ch.cfg.PingInterval)
	defer func() {
		pingTicker.Stop()
		wg.Done()
	}()
SendLoop:
	for {
		select {
		case <-ctx.Done():
			break SendLoop
		case <-pingTicker.C:
			wsErr := conn.SetWriteDeadline(time.Now().Add(ch.cfg.WriteTimeout))
			if wsErr != nil {
				ch.logger.Error().Err(wsErr).Msg("failed to set websocket write deadline")
				break SendLoop
			}
			if wsErr = conn.WriteMessage(websocket.PingMessage, []byte{}); wsErr != nil {
				ch.logger.Error().Err(wsErr).Msg("failed to send ping")
				break SendLoop
			}
			ch.logger.Trace().Msg("ping sent")

		case ev := <-ch.queue:
			if ch.limiter != nil {
				if err := ch.limiter.Wait(ctx); err != nil {
					ch.metrics.dropped.WithLabelValues("canceled").Inc()
					break SendLoop
				}
			}

			b, wsErr := json.Marshal(&ev)
			if wsErr != nil {
				ch.metrics.dropped.WithLabelValues("encode").Inc()
				ch.logger.Error().Err(wsErr).Str("event", ev.Name).Msg("failed to marshal outgoing event")
				continue
			}
			if wsErr = ch.write(conn, b); wsErr != nil {
				ch.metrics.dropped.WithLabelValues("write").Inc()
				ch.logger.Error().Err(wsErr).Str("event", ev.Name).Msg("failed to write outgoing event")
				break SendLoop
			}
			ch.metrics.written.Inc()
			ch.logger.Trace().Str("event", ev.Name).Msg("event sent")
		}
	}
}

func (ch *Channel) write(conn *websocket.Conn, b []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(ch.cfg.WriteTimeout)); err != nil {
		return err
	}
	wsW, err := conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	if _, err = wsW.Write(b); err != nil {
		_ = wsW.Close()
		return err
	}
	return wsW.Close()
}

func (ch *Channel) receiver(ctx context.Context, wg *sync.WaitGroup, conn *websocket.Conn) {
	defer wg.Done()

	conn.SetReadLimit(defaultWebSocketMaxMessageSize)
	readDeadLineFunc := func() error {
		return conn.SetReadDeadline(time.Now().Add(ch.cfg.PongWait))
	}
	conn.SetPongHandler(func(string) error {
		ch.logger.Trace().Msg("got pong")
		return readDeadLineFunc()
	})
	if err := readDeadLineFunc(); err != nil {
		ch.logger.Error().Err(err).Msg("failed to set websocket read deadline")
		return
	}

	for {
		_, msg, wsErr := conn.ReadMessage()
		if wsErr != nil {
			switch {
			case ctx.Err() != nil:
			case websocket.IsCloseError(wsErr, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				ch.logger.Warn().Err(wsErr).Msg("connection closed")
			default:
				ch.logger.Error().Err(wsErr).Msg("unexpected error during receive")
			}
			return
		}
		if err := readDeadLineFunc(); err != nil {
			ch.logger.Error().Err(err).Msg("failed to set websocket read deadline")
			return
		}

		var ev model.Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			ch.logger.Error().Err(err).Msg("failed to unmarshal incoming event")
			continue
		}
		ch.metrics.inbound.Inc()
		select {
		case ch.inbound <- ev:
		default:
			ch.logger.Warn().Str("event", ev.Name).Msg("inbound buffer full, dropping event")
		}
	}
}

func webSocketCloser(conn *websocket.Conn, logger *zerolog.Logger) {
	wsErr := conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(defaultWebSocketCloseWriteDeadline),
	)
	if wsErr != nil && !errors.Is(wsErr, websocket.ErrCloseSent) {
		logger.Debug().Err(wsErr).Msg("failed to send close message")
	}
	if wsErr = conn.Close(); wsErr != nil {
		logger.Error().Err(wsErr).Msg("failed to close websocket connection")
	}
}
