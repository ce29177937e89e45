package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/numify/pkg/auth"
	"github.com/odvcencio/numify/pkg/scraper"
	"github.com/odvcencio/numify/pkg/session"
)

type stubPage struct {
	mu      sync.Mutex
	batches [][]string
	calls   int
}

func (p *stubPage) QueryTextElements(context.Context, string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.calls < len(p.batches) {
		batch := p.batches[p.calls]
		p.calls++
		return batch, nil
	}
	return nil, nil
}

func (p *stubPage) Close() error { return nil }

type stubProvider struct {
	batches [][]string
}

func (p *stubProvider) Open(context.Context, string) (scraper.Page, error) {
	return &stubPage{batches: p.batches}, nil
}

type stubStore struct {
	mu       sync.Mutex
	users    map[string]bool // uid -> approved
	appended []string
}

func newStubStore() *stubStore {
	return &stubStore{users: make(map[string]bool)}
}

func (s *stubStore) UserExists(_ context.Context, uid string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[uid]
	return ok, nil
}

func (s *stubStore) IsApproved(_ context.Context, uid string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[uid], nil
}

func (s *stubStore) AppendNumber(_ context.Context, _, number, _ string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appended = append(s.appended, number)
	return nil
}

func (s *stubStore) UpsertSessionMeta(context.Context, string, string) error { return nil }

type testEnv struct {
	server   *Server
	store    *stubStore
	verifier *auth.Verifier
}

func newTestEnv(t *testing.T, provider scraper.Provider) *testEnv {
	t.Helper()
	store := newStubStore()
	verifier := auth.NewVerifier("test-secret")
	srv := NewServer(ServerConfig{
		Registry:       session.NewRegistry(),
		Verifier:       verifier,
		Provider:       provider,
		Store:          store,
		PollInterval:   5 * time.Millisecond,
		StreamInterval: 5 * time.Millisecond,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return &testEnv{server: srv, store: store, verifier: verifier}
}

func (e *testEnv) token(t *testing.T, uid string) string {
	t.Helper()
	token, err := e.verifier.GenerateToken(uid, time.Hour)
	require.NoError(t, err)
	return token
}

func (e *testEnv) approve(uid string) {
	e.store.mu.Lock()
	e.store.users[uid] = true
	e.store.mu.Unlock()
}

func (e *testEnv) doStart(t *testing.T, token, liveURL string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"live_url": liveURL})
	req := httptest.NewRequest(http.MethodPost, "/start", bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) doStop(t *testing.T, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/stop", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func waitForStatus(t *testing.T, reg *session.Registry, uid string, want session.Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sess, ok := reg.Get(uid); ok && sess.Status() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("session %s never reached %s", uid, want)
}

func TestRootLiveness(t *testing.T) {
	env := newTestEnv(t, &stubProvider{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartRequiresAuth(t *testing.T) {
	env := newTestEnv(t, &stubProvider{})

	rec := env.doStart(t, "", "https://example/live/1")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.doStart(t, "not-a-token", "https://example/live/1")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStartValidation(t *testing.T) {
	env := newTestEnv(t, &stubProvider{})
	env.approve("user-1")
	token := env.token(t, "user-1")

	rec := env.doStart(t, token, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartRejectsUnknownAndUnapprovedUsers(t *testing.T) {
	env := newTestEnv(t, &stubProvider{})

	// No user record at all.
	rec := env.doStart(t, env.token(t, "ghost"), "https://example/live/1")
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "user record not found")

	// Record exists, not approved.
	env.store.mu.Lock()
	env.store.users["pending"] = false
	env.store.mu.Unlock()
	rec = env.doStart(t, env.token(t, "pending"), "https://example/live/1")
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "user not approved")
}

func TestStartConflictWhileRunning(t *testing.T) {
	env := newTestEnv(t, &stubProvider{})
	env.approve("user-1")
	token := env.token(t, "user-1")

	rec := env.doStart(t, token, "https://example/live/1")
	require.Equal(t, http.StatusOK, rec.Code)
	waitForStatus(t, env.server.registry, "user-1", session.StatusRunning)

	rec = env.doStart(t, token, "https://example/live/2")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStopLifecycleAndIdempotence(t *testing.T) {
	env := newTestEnv(t, &stubProvider{})
	env.approve("user-1")
	token := env.token(t, "user-1")

	// Stop without any session.
	rec := env.doStop(t, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.Equal(t, http.StatusOK, env.doStart(t, token, "https://example/live/1").Code)
	waitForStatus(t, env.server.registry, "user-1", session.StatusRunning)

	rec = env.doStop(t, token)
	require.Equal(t, http.StatusOK, rec.Code)
	waitForStatus(t, env.server.registry, "user-1", session.StatusStopped)

	// Second stop is success-without-effect, never a misuse error.
	rec = env.doStop(t, token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartStopScenario(t *testing.T) {
	provider := &stubProvider{batches: [][]string{
		{"ring me 21234567", "21234567 please"},
	}}
	env := newTestEnv(t, provider)
	env.approve("user-1")
	token := env.token(t, "user-1")

	require.Equal(t, http.StatusOK, env.doStart(t, token, "https://example/live/123").Code)
	waitForStatus(t, env.server.registry, "user-1", session.StatusRunning)

	sess, _ := env.server.registry.Get("user-1")
	deadline := time.Now().Add(2 * time.Second)
	for sess.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	recs := sess.RecordsFrom(0)
	require.Len(t, recs, 1)
	assert.Equal(t, "21234567", recs[0].Number)
	assert.Equal(t, "ring me 21234567", recs[0].Message)

	require.Equal(t, http.StatusOK, env.doStop(t, token).Code)
	waitForStatus(t, env.server.registry, "user-1", session.StatusStopped)
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t, &stubProvider{})
	env.approve("user-1")
	token := env.token(t, "user-1")

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.Equal(t, http.StatusOK, env.doStart(t, token, "https://example/live/1").Code)
	waitForStatus(t, env.server.registry, "user-1", session.StatusRunning)

	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "running", body["status"])
	assert.Equal(t, "https://example/live/1", body["live_url"])
}

func TestStreamRequiresToken(t *testing.T) {
	env := newTestEnv(t, &stubProvider{})

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/stream?token=bogus", nil)
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStreamDeliversRecordsInOrder(t *testing.T) {
	env := newTestEnv(t, &stubProvider{})
	token := env.token(t, "user-1")

	sess, err := env.server.registry.Create("user-1", "https://example/live/1")
	require.NoError(t, err)
	sess.Append(session.Record{Number: "11111111", Message: "first 11111111"})
	sess.Append(session.Record{Number: "22222222", Message: "then 22222222"})

	ts := httptest.NewServer(env.server.Handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/stream?token="+token, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	events := readSSEEvents(t, reader, 2)
	assert.Equal(t, "11111111", events[0]["number"])
	assert.Equal(t, "first 11111111", events[0]["message"])
	assert.Equal(t, "22222222", events[1]["number"])

	// A record appended while the stream is open arrives next.
	sess.Append(session.Record{Number: "33333333", Message: "late 33333333"})
	late := readSSEEvents(t, reader, 1)
	assert.Equal(t, "33333333", late[0]["number"])
}

func readSSEEvents(t *testing.T, reader *bufio.Reader, n int) []map[string]string {
	t.Helper()
	var events []map[string]string
	for len(events) < n {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var payload map[string]string
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &payload))
		events = append(events, payload)
	}
	return events
}
