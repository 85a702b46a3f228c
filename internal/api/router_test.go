package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Popie52/offlinesync/internal/core"
	"github.com/Popie52/offlinesync/internal/metrics"
	"github.com/Popie52/offlinesync/internal/model"
	"github.com/Popie52/offlinesync/internal/network"
	"github.com/Popie52/offlinesync/internal/sender"
	"github.com/Popie52/offlinesync/internal/store"
)

type countingTrigger struct{ n atomic.Int32 }

func (c *countingTrigger) Trigger() { c.n.Add(1) }

type testServer struct {
	router  *Router
	store   store.ActionStore
	engine  *core.Engine
	trigger *countingTrigger
	monitor *network.Manual
	metrics *metrics.Metrics
	hub     *Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "actions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	m := metrics.New()
	e := core.NewEngine(st, sender.Func(func(context.Context, *model.Action) error { return nil }),
		core.WithMetrics(m))
	mon := network.NewManual(true)
	mon.Subscribe(e.SetOnline)
	e.SetOnline(true)

	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	ts := &testServer{
		store:   st,
		engine:  e,
		trigger: &countingTrigger{},
		monitor: mon,
		metrics: m,
		hub:     hub,
	}
	ts.router = NewRouter(Deps{
		Store:     st,
		Engine:    e,
		Scheduler: ts.trigger,
		Network:   mon,
		Metrics:   m,
		Hub:       hub,
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestRequestID_Propagated(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	ts.router.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestEnqueueAction(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/actions", map[string]string{"kind": "large", "payload": "photo.jpg"})
	require.Equal(t, http.StatusCreated, rec.Code)

	v := decode[actionView](t, rec)
	assert.NotEmpty(t, v.ID)
	assert.Equal(t, "large", v.Kind)
	assert.Equal(t, "LARGE", v.KindLabel)
	assert.Equal(t, "pending", v.Status)
	assert.Equal(t, "PENDING", v.StatusLabel)
	assert.Equal(t, 2, v.Priority)
	assert.Equal(t, 0, v.RetryCount)

	stored, err := ts.store.Get(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, "photo.jpg", stored.Payload)

	assert.Equal(t, int32(1), ts.trigger.n.Load())
	assert.Contains(t, ts.do(t, http.MethodGet, "/metrics", nil).Body.String(),
		`offlinesync_actions_enqueued_total{kind="large"} 1`)
}

func TestEnqueueAction_KindIsCaseInsensitive(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/actions", map[string]string{"kind": " Small "})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "small", decode[actionView](t, rec).Kind)
}

func TestEnqueueAction_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown kind", `{"kind":"huge"}`},
		{"missing kind", `{"payload":"x"}`},
		{"malformed", `{"kind":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)

			req := httptest.NewRequest(http.MethodPost, "/actions", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			ts.router.Handler().ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Zero(t, ts.trigger.n.Load())

			all, err := ts.store.ListAll(context.Background())
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestEnqueueAction_RefusedWhileShuttingDown(t *testing.T) {
	ts := newTestServer(t)
	close(ts.router.closing)

	rec := ts.do(t, http.MethodPost, "/actions", map[string]string{"kind": "small"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListActions(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	large, err := ts.store.Enqueue(ctx, model.KindLarge, "l")
	require.NoError(t, err)
	small, err := ts.store.Enqueue(ctx, model.KindSmall, "s")
	require.NoError(t, err)
	done, err := ts.store.Enqueue(ctx, model.KindSmall, "done")
	require.NoError(t, err)
	require.NoError(t, ts.store.MarkCompleted(ctx, done.ID))

	ids := func(rec *httptest.ResponseRecorder) []string {
		body := decode[struct {
			Actions []actionView `json:"actions"`
		}](t, rec)
		out := make([]string, 0, len(body.Actions))
		for _, a := range body.Actions {
			out = append(out, a.ID)
		}
		return out
	}

	rec := ts.do(t, http.MethodGet, "/actions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{small.ID, large.ID, done.ID}, ids(rec))

	rec = ts.do(t, http.MethodGet, "/actions?status=pending", nil)
	assert.Equal(t, []string{small.ID, large.ID}, ids(rec))

	rec = ts.do(t, http.MethodGet, "/actions?status=completed", nil)
	assert.Equal(t, []string{done.ID}, ids(rec))

	rec = ts.do(t, http.MethodGet, "/actions?status=failed", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAction(t *testing.T) {
	ts := newTestServer(t)

	a, err := ts.store.Enqueue(context.Background(), model.KindSmall, "x")
	require.NoError(t, err)

	rec := ts.do(t, http.MethodGet, "/actions/"+a.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, a.ID, decode[actionView](t, rec).ID)

	rec = ts.do(t, http.MethodGet, "/actions/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStats(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	a, err := ts.store.Enqueue(ctx, model.KindSmall, "a")
	require.NoError(t, err)
	b, err := ts.store.Enqueue(ctx, model.KindSmall, "b")
	require.NoError(t, err)
	require.NoError(t, ts.store.MarkCompleted(ctx, a.ID))
	for i := 0; i < core.DefaultMaxRetry; i++ {
		require.NoError(t, ts.store.IncrementRetry(ctx, b.ID))
	}

	rec := ts.do(t, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]int](t, rec)
	assert.Equal(t, 1, body["pending"])
	assert.Equal(t, 1, body["completed"])
	assert.Equal(t, 1, body["exhausted"])
	assert.Equal(t, 2, body["total"])
	assert.Equal(t, core.DefaultMaxRetry, body["max_retry"])
}

func TestTriggerSync(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/sync", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, int32(1), ts.trigger.n.Load())
}

func TestSetNetwork(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPut, "/network", map[string]bool{"online": false})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[map[string]bool](t, rec)["online"])
	assert.False(t, ts.engine.Online())

	rec = ts.do(t, http.MethodGet, "/status", nil)
	assert.Equal(t, map[string]bool{"online": false, "syncing": false}, decode[map[string]bool](t, rec))

	rec = ts.do(t, http.MethodPut, "/network", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetNetwork_NotRegisteredWithoutSetter(t *testing.T) {
	ts := newTestServer(t)
	r := NewRouter(Deps{Store: ts.store, Engine: ts.engine})

	req := httptest.NewRequest(http.MethodPut, "/network", strings.NewReader(`{"online":true}`))
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "offlinesync_")
}

func TestWebSocket_ReceivesEvents(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.router.Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return ts.hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Post(srv.URL+"/actions", "application/json", strings.NewReader(`{"kind":"small","payload":"hi"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env struct {
		Type string     `json:"type"`
		Data actionView `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, EventActionEnqueued, env.Type)
	assert.Equal(t, "hi", env.Data.Payload)
}

func TestHub_BroadcastPass(t *testing.T) {
	ts := newTestServer(t)
	srv := httptest.NewServer(ts.router.Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return ts.hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	ts.hub.BroadcastPass(core.PassReport{Ran: true, Outcome: core.OutcomeDrained, Completed: 2}, nil)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env struct {
		Type string `json:"type"`
		Data struct {
			Report  passView     `json:"report"`
			Actions []actionView `json:"actions"`
		} `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, EventSyncCompleted, env.Type)
	assert.Equal(t, "drained", env.Data.Report.Outcome)
	assert.Equal(t, 2, env.Data.Report.Completed)
	assert.Empty(t, env.Data.Actions)
}

func TestHub_StopDisconnectsClients(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
	assert.Zero(t, hub.Clients())

	// Broadcasting after stop must not block.
	hub.Broadcast(EventNetworkChanged, map[string]bool{"online": true})
}
