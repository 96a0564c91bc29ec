package _switch

import (
	"context"
	"sync"
	"time"

	"github.com/adwski/realtime-session/backend/model"
	"github.com/rs/zerolog"
)

const (
	// AnyEvent subscribes a handler to every inbound event.
	AnyEvent = "*"

	defaultHandlerTimeout = time.Second
)

// Handler processes one inbound event. It runs on the switch goroutine.
type Handler func(ctx context.Context, ev model.Event)

// Switch routes inbound channel events to handlers registered by event name.
type Switch struct {
	logger   zerolog.Logger
	mx       *sync.RWMutex
	handlers map[string][]Handler

	// handlerTimeout is how long a handler may run before it is reported as slow.
	handlerTimeout time.Duration
}

func NewSwitch(logger *zerolog.Logger) *Switch {
	return &Switch{
		logger:         logger.With().Str("component", "switch").Logger(),
		mx:             &sync.RWMutex{},
		handlers:       make(map[string][]Handler),
		handlerTimeout: defaultHandlerTimeout,
	}
}

func (sw *Switch) On(event string, h Handler) {
	sw.mx.Lock()
	defer sw.mx.Unlock()
	sw.handlers[event] = append(sw.handlers[event], h)
}

// Off removes every handler registered for event.
func (sw *Switch) Off(event string) {
	sw.mx.Lock()
	defer sw.mx.Unlock()
	delete(sw.handlers, event)
}

// Run dispatches events from in until ctx is done or in is closed.
func (sw *Switch) Run(ctx context.Context, wg *sync.WaitGroup, in <-chan model.Event) {
	defer func() {
		sw.logger.Debug().Msg("switch stopped")
		wg.Done()
	}()
fwdLoop:
	for {
		select {
		case <-ctx.Done():
			break fwdLoop
		case ev, ok := <-in:
			if !ok {
				break fwdLoop
			}
			if !sw.Dispatch(ctx, ev) {
				sw.logger.Debug().
					Str("event", ev.Name).
					Msg("incoming event was dropped, no handlers")
			}
		}
	}
}

// Dispatch calls the handlers of ev in registration order, then the AnyEvent
// handlers. It reports whether at least one handler was called.
func (sw *Switch) Dispatch(ctx context.Context, ev model.Event) bool {
	sw.mx.RLock()
	handlers := make([]Handler, 0, len(sw.handlers[ev.Name])+len(sw.handlers[AnyEvent]))
	handlers = append(handlers, sw.handlers[ev.Name]...)
	if ev.Name != AnyEvent {
		handlers = append(handlers, sw.handlers[AnyEvent]...)
	}
	sw.mx.RUnlock()

	logger := sw.logger.With().Str("event", ev.Name).Logger()
	for _, h := range handlers {
		if ctx.Err() != nil {
			return false
		}
		invoke(ctx, ev, h, sw.handlerTimeout, &logger)
	}
	return len(handlers) > 0
}

func invoke(ctx context.Context, ev model.Event, h Handler, timeout time.Duration, logger *zerolog.Logger) {
	slow := time.AfterFunc(timeout, func() {
		logger.Warn().Dur("timeout", timeout).Msg("event handler is slow")
	})
	defer slow.Stop()
	h(ctx, ev)
}
