package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/flashbid/internal/auction"
	"github.com/dreamware/flashbid/internal/auth"
	"github.com/dreamware/flashbid/internal/bidding"
	"github.com/dreamware/flashbid/internal/broadcast"
	"github.com/dreamware/flashbid/internal/core"
	"github.com/dreamware/flashbid/internal/durable"
	"github.com/dreamware/flashbid/internal/hotstore"
	"github.com/dreamware/flashbid/internal/monitor"
	"github.com/dreamware/flashbid/internal/persist"
	"github.com/dreamware/flashbid/internal/session"
)

type testApp struct {
	ts      *httptest.Server
	hot     *hotstore.Memory
	db      *durable.Memory
	core    *core.Core
	session auction.Session
	user    auction.Principal
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	log := zerolog.Nop()

	hot := hotstore.NewMemory()
	db := durable.NewMemory()

	user := auction.Principal{ID: uuid.New(), Username: "alice", Weight: 1}
	db.PutUser(user)

	now := time.Now().UTC()
	s := auction.Session{
		ID:           uuid.New(),
		ProductID:    uuid.New(),
		ReservePrice: 100,
		Inventory:    2,
		Alpha:        0.5,
		Beta:         1000,
		Gamma:        2,
		StartTime:    now.Add(-time.Minute),
		EndTime:      now.Add(time.Hour),
		IsActive:     true,
	}
	db.PutSession(s)

	params := session.NewParamCache(hot, db, time.Hour, log)
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	authn := auth.NewAuthenticator(tokens, auth.NewCache(100, 5*time.Second), hot, log)

	reader := bidding.NewReader(params, hot, db, log)
	bcast := broadcast.NewBroadcaster(func(ctx context.Context, sessionID uuid.UUID) (*auction.LeaderboardSnapshot, error) {
		return reader.Leaderboard(ctx, sessionID, 1, broadcastPageSize)
	}, log)
	processor := bidding.NewProcessor(params, hot, bcast, log)
	persister := persist.NewPersister(hot, db, time.Second, log)
	mon := monitor.NewMonitor(db, hot, persister, bcast, time.Second, log)
	c := core.New(authn, tokens, processor, reader, bcast, mon, db, hot, log)

	srv := &server{
		core:     c,
		upgrader: websocket.Upgrader{},
		log:      log,
	}

	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)
	t.Cleanup(bcast.Close)

	return &testApp{
		ts:      ts,
		hot:     hot,
		db:      db,
		core:    c,
		session: s,
		user:    user,
	}
}

func (a *testApp) postJSON(t *testing.T, path, token string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, a.ts.URL+path, bytes.NewReader(buf))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.ts.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (a *testApp) login(t *testing.T) string {
	t.Helper()
	resp := a.postJSON(t, "/token", "", map[string]string{"user_id": a.user.ID.String()})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string]string](t, resp)
	require.NotEmpty(t, body["access_token"])
	return body["access_token"]
}

func TestBidFlow(t *testing.T) {
	app := newTestApp(t)
	token := app.login(t)

	resp := app.postJSON(t, "/bid", token, map[string]any{
		"session_id": app.session.ID,
		"bid_price":  250,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decodeBody[auction.BidResult](t, resp)
	assert.Equal(t, 1, result.Rank)
	assert.Greater(t, result.Score, 0.0)

	lbResp, err := app.ts.Client().Get(fmt.Sprintf("%s/leaderboard/%s", app.ts.URL, app.session.ID))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, lbResp.StatusCode)

	snap := decodeBody[auction.LeaderboardSnapshot](t, lbResp)
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, app.user.ID, snap.Entries[0].UserID)
	assert.Equal(t, "alice", snap.Entries[0].Username)
	assert.Equal(t, 250.0, snap.Entries[0].Price)
	assert.True(t, snap.Entries[0].IsWinner)
}

func TestBidRequiresAuth(t *testing.T) {
	app := newTestApp(t)

	resp := app.postJSON(t, "/bid", "", map[string]any{
		"session_id": app.session.ID,
		"bid_price":  250,
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = app.postJSON(t, "/bid", "garbage", map[string]any{
		"session_id": app.session.ID,
		"bid_price":  250,
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBidBelowReserve(t *testing.T) {
	app := newTestApp(t)
	token := app.login(t)

	resp := app.postJSON(t, "/bid", token, map[string]any{
		"session_id": app.session.ID,
		"bid_price":  50,
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBidUnknownSession(t *testing.T) {
	app := newTestApp(t)
	token := app.login(t)

	resp := app.postJSON(t, "/bid", token, map[string]any{
		"session_id": uuid.New(),
		"bid_price":  250,
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTokenUnknownUser(t *testing.T) {
	app := newTestApp(t)

	resp := app.postJSON(t, "/token", "", map[string]string{"user_id": uuid.NewString()})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResultsLifecycle(t *testing.T) {
	app := newTestApp(t)
	token := app.login(t)

	resp := app.postJSON(t, "/bid", token, map[string]any{
		"session_id": app.session.ID,
		"bid_price":  250,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	url := fmt.Sprintf("%s/results/%s", app.ts.URL, app.session.ID)

	// Still running: no frozen results yet.
	active, err := app.ts.Client().Get(url)
	require.NoError(t, err)
	active.Body.Close()
	assert.Equal(t, http.StatusConflict, active.StatusCode)

	_, err = app.core.FinalizeSession(context.Background(), app.session.ID)
	require.NoError(t, err)

	done, err := app.ts.Client().Get(url)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, done.StatusCode)

	res := decodeBody[auction.SessionResults](t, done)
	assert.False(t, res.Session.IsActive)
	require.NotNil(t, res.Session.FinalPrice)
	assert.Equal(t, app.session.ReservePrice, *res.Session.FinalPrice, "one bidder for two slots clears at reserve")
	require.Len(t, res.Rankings, 1)
	assert.Equal(t, app.user.ID, res.Rankings[0].UserID)
	assert.True(t, res.Rankings[0].IsWinner)
}

func TestResultsUnknownSession(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.ts.Client().Get(app.ts.URL + "/results/" + uuid.NewString())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionList(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.ts.Client().Get(app.ts.URL + "/sessions")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[map[string][]auction.Session](t, resp)
	require.Len(t, body["sessions"], 1)
	assert.Equal(t, app.session.ID, body["sessions"][0].ID)
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.ts.Client().Get(app.ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLeaderboardFeedStreamsUpdates(t *testing.T) {
	app := newTestApp(t)
	token := app.login(t)

	wsURL := "ws" + app.ts.URL[len("http"):] + "/ws/" + app.session.ID.String()
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// Initial snapshot arrives before any bid.
	var initial auction.LeaderboardSnapshot
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&initial))
	assert.Zero(t, initial.TotalCount)

	bidResp := app.postJSON(t, "/bid", token, map[string]any{
		"session_id": app.session.ID,
		"bid_price":  250,
	})
	require.Equal(t, http.StatusOK, bidResp.StatusCode)
	bidResp.Body.Close()

	var updated auction.LeaderboardSnapshot
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&updated))
	assert.Equal(t, 1, updated.TotalCount)
	assert.Equal(t, app.user.ID, updated.Entries[0].UserID)
}

func TestLeaderboardFeedRejectsUnknownSession(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.ts.Client().Get(app.ts.URL + "/ws/" + uuid.NewString())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
