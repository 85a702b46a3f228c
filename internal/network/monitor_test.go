package network

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []bool
}

func (r *recorder) record(online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, online)
}

func (r *recorder) get() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.events...)
}

func TestManual_NotifiesOnTransitionsOnly(t *testing.T) {
	m := NewManual(false)
	rec := &recorder{}
	m.Subscribe(rec.record)

	m.Set(false)
	m.Set(true)
	m.Set(true)
	m.Set(false)

	assert.Equal(t, []bool{true, false}, rec.get())
	assert.False(t, m.CurrentState(context.Background()))
}

func TestManual_Unsubscribe(t *testing.T) {
	m := NewManual(false)
	rec := &recorder{}
	unsubscribe := m.Subscribe(rec.record)

	m.Set(true)
	unsubscribe()
	unsubscribe()
	m.Set(false)

	assert.Equal(t, []bool{true}, rec.get())
}

func TestManual_CallbackMayUnsubscribeItself(t *testing.T) {
	m := NewManual(false)

	var calls int
	var unsubscribe func()
	unsubscribe = m.Subscribe(func(bool) {
		calls++
		unsubscribe()
	})

	m.Set(true)
	m.Set(false)
	assert.Equal(t, 1, calls)
}

func TestProbe_CurrentState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := NewProbe(srv.URL, time.Hour, time.Second, nil)
	assert.True(t, p.CurrentState(context.Background()))
}

func TestProbe_ServerErrorIsOffline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewProbe(srv.URL, time.Hour, time.Second, nil)
	assert.False(t, p.CurrentState(context.Background()))
}

func TestProbe_UnreachableIsOffline(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewProbe(url, time.Hour, 200*time.Millisecond, nil)
	assert.False(t, p.CurrentState(context.Background()))
}

func TestProbe_RunNotifiesTransitions(t *testing.T) {
	var up atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if up.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewProbe(srv.URL, 10*time.Millisecond, time.Second, nil)
	require.False(t, p.CurrentState(context.Background()))

	rec := &recorder{}
	p.Subscribe(rec.record)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Run(ctx)
	}()

	up.Store(true)
	require.Eventually(t, func() bool { return len(rec.get()) == 1 }, 2*time.Second, 5*time.Millisecond)

	up.Store(false)
	require.Eventually(t, func() bool { return len(rec.get()) == 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, []bool{true, false}, rec.get())
}
