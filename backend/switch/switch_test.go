package _switch

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/adwski/realtime-session/backend/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSwitch() *Switch {
	logger := zerolog.Nop()
	return NewSwitch(&logger)
}

func TestSwitch_DispatchOrder(t *testing.T) {
	sw := newTestSwitch()
	var calls []string
	sw.On("joined", func(_ context.Context, ev model.Event) { calls = append(calls, "first:"+ev.Name) })
	sw.On("joined", func(_ context.Context, ev model.Event) { calls = append(calls, "second:"+ev.Name) })
	sw.On(AnyEvent, func(_ context.Context, ev model.Event) { calls = append(calls, "any:"+ev.Name) })

	assert.True(t, sw.Dispatch(context.Background(), model.Event{Name: "joined"}))
	assert.True(t, sw.Dispatch(context.Background(), model.Event{Name: "left"}))
	assert.Equal(t, []string{"first:joined", "second:joined", "any:joined", "any:left"}, calls)
}

func TestSwitch_Off(t *testing.T) {
	sw := newTestSwitch()
	called := false
	sw.On("joined", func(context.Context, model.Event) { called = true })
	sw.Off("joined")

	assert.False(t, sw.Dispatch(context.Background(), model.Event{Name: "joined"}))
	assert.False(t, called)
}

func TestSwitch_Run(t *testing.T) {
	sw := newTestSwitch()
	got := make(chan model.Event, 2)
	sw.On("joined", func(_ context.Context, ev model.Event) { got <- ev })

	in := make(chan model.Event)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wg := &sync.WaitGroup{}
	wg.Add(1)
	go sw.Run(ctx, wg, in)

	in <- model.Event{Name: "ignored"}
	in <- model.Event{Name: "joined", Data: map[string]any{"userId": "peer"}}

	select {
	case ev := <-got:
		assert.Equal(t, map[string]any{"userId": "peer"}, ev.Data)
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}

	close(in)
	wg.Wait()
}

func TestSwitch_CanceledContext(t *testing.T) {
	sw := newTestSwitch()
	sw.On("joined", func(context.Context, model.Event) { t.Error("handler must not run") })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.False(t, sw.Dispatch(ctx, model.Event{Name: "joined"}))
}

type syncBuffer struct {
	mx  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.buf.String()
}

func TestSwitch_SlowHandlerWarning(t *testing.T) {
	out := &syncBuffer{}
	logger := zerolog.New(out)
	sw := NewSwitch(&logger)
	sw.handlerTimeout = 10 * time.Millisecond

	release := make(chan struct{})
	sw.On("slow", func(context.Context, model.Event) { <-release })
	sw.On("fast", func(context.Context, model.Event) {})

	require.True(t, sw.Dispatch(context.Background(), model.Event{Name: "fast"}))
	time.Sleep(30 * time.Millisecond)
	assert.NotContains(t, out.String(), "event handler is slow")

	done := make(chan struct{})
	go func() {
		sw.Dispatch(context.Background(), model.Event{Name: "slow"})
		close(done)
	}()
	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "event handler is slow")
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, out.String(), `"event":"slow"`)

	close(release)
	<-done
}
