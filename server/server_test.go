package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/minelist/status-sync/config"
	"github.com/minelist/status-sync/listcache"
	"github.com/minelist/status-sync/notify"
	"github.com/minelist/status-sync/status"
	"github.com/minelist/status-sync/store"
	"github.com/minelist/status-sync/store/leveldbstore"
)

type staticProvider struct{}

func (staticProvider) Fetch(context.Context, string) (*status.Result, error) {
	return &status.Result{Online: true, Players: status.Players{Online: 9, Max: 90}}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return newTestServerWithLogger(t, zap.NewNop())
}

func newTestServerWithLogger(t *testing.T, l *zap.Logger) *Server {
	t.Helper()

	st, err := leveldbstore.OpenMemory()
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, st.PutServer(ctx, store.ServerRecord{
		Slug: "alpha", Name: "Alpha", Address: "alpha.example.org",
		VoteCooldownMs: 60_000, Secret: "s3cr3t", VotingRewardEnabled: true,
	}))

	cfg := &config.Config{
		Server:    config.Server{ListenAddress: "127.0.0.1:0"},
		Status:    config.Status{TTL: time.Minute, Timeout: time.Second},
		Sync:      config.Sync{Enabled: true, Interval: time.Hour, Parallelism: 1},
		ListCache: config.ListCache{TTL: time.Minute},
		Vote:      config.Vote{DefaultCooldown: 12 * time.Hour, BroadcastTimeout: time.Second},
	}

	s := newServer(cfg, l, st, notify.Noop{}, staticProvider{})
	t.Cleanup(func() { s.close() })
	return s
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthcheck(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServerEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/servers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []listcache.PublicServer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 1)
	assert.Equal(t, "alpha", all[0].Slug)
	assert.NotContains(t, rec.Body.String(), "s3cr3t")

	rec = do(t, s, http.MethodGet, "/api/servers/ALPHA", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var one listcache.PublicServer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	assert.Equal(t, "Alpha", one.Name)

	rec = do(t, s, http.MethodGet, "/api/servers/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVoteEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/votes", `{"username":"bob","serverSlug":"alpha","secret":"s3cr3t"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res voteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "accepted", res.Status)
	assert.True(t, res.RewardSent)

	rec = do(t, s, http.MethodPost, "/api/votes", `{"username":"BOB","serverSlug":"alpha"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "cooldown_active", res.Status)
	assert.Greater(t, res.RemainingMs, int64(0))
	assert.LessOrEqual(t, res.RemainingMs, int64(60_000))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec = do(t, s, http.MethodPost, "/api/votes", `{"username":"eve","serverSlug":"alpha","secret":"nope"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/votes", `{"username":"eve","serverSlug":"missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/votes", `{"username":"","serverSlug":"alpha"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/votes", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/servers/alpha/votes?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var evts []store.VoteEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &evts))
	require.Len(t, evts, 1)
	assert.Equal(t, "bob", evts[0].Username)
	assert.True(t, evts[0].RewardEligible)

	rec = do(t, s, http.MethodGet, "/api/servers/alpha/votes?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVoteStorageFailureIsLoggedWithTheVote(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	s := newTestServerWithLogger(t, zap.New(core))
	require.NoError(t, s.store.Close())

	rec := do(t, s, http.MethodPost, "/api/votes", `{"username":"bob","serverSlug":"alpha"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_error")

	failures := logs.FilterMessage("Request failed").All()
	require.Len(t, failures, 1)
	fields := failures[0].ContextMap()
	assert.Equal(t, "alpha", fields["server_slug"])
	assert.Equal(t, "bob", fields["username"])
}

func TestSyncFeedsTheList(t *testing.T) {
	s := newTestServer(t)

	s.scheduler.Start()
	require.Eventually(t, func() bool {
		rec, err := s.store.FindServer(context.Background(), "alpha")
		return err == nil && rec.Online
	}, 2*time.Second, 10*time.Millisecond)

	rec, err := s.store.FindServer(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, 9, rec.Players)
	assert.Equal(t, 90, rec.MaxPlayers)
}
