package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"mission-ledger/models"
	"mission-ledger/services"
	"mission-ledger/store"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testToken = "gateway-secret"
	adminID   = int64(900)
)

type testApp struct {
	app    *fiber.App
	ledger *services.Ledger
	store  *store.MemoryStore
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	s := store.NewMemoryStore()
	l, err := services.NewLedger(s, nil, nil, zap.NewNop())
	require.NoError(t, err)
	app := NewApp(AppConfig{GatewayToken: testToken, AdminID: adminID}, l, zap.NewNop())
	return &testApp{app: app, ledger: l, store: s}
}

// do sends an authenticated request as userID (0 for none) and decodes the
// JSON response into out when given.
func (a *testApp) do(t *testing.T, method, path string, userID int64, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+testToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != 0 {
		req.Header.Set("X-User-ID", strconv.FormatInt(userID, 10))
	}

	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthzIsOpen(t *testing.T) {
	a := newTestApp(t)
	resp, err := a.app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGatewayToken(t *testing.T) {
	a := newTestApp(t)

	resp, err := a.app.Test(httptest.NewRequest(http.MethodGet, "/rewards", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(http.MethodGet, "/rewards", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = a.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var rewards []models.Reward
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/rewards", 0, nil, &rewards))
	assert.Empty(t, rewards)
}

func TestMalformedUserHeader(t *testing.T) {
	a := newTestApp(t)
	req := httptest.NewRequest(http.MethodGet, "/missions", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("X-User-ID", "abc")
	resp, err := a.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRegisterAndProfile(t *testing.T) {
	a := newTestApp(t)

	var reg struct {
		User    models.User `json:"user"`
		Created bool        `json:"created"`
	}
	assert.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/users", 42, map[string]any{"display_name": "ana"}, &reg))
	assert.True(t, reg.Created)
	assert.Equal(t, int64(42), reg.User.ExternalUserID)

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/users", 0, map[string]any{"external_user_id": 42}, &reg))
	assert.False(t, reg.Created)

	var u models.User
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/users/42", 0, nil, &u))
	assert.Equal(t, 1, u.Level)
	assert.Equal(t, "ana", u.Name())

	var errBody map[string]string
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/users/7", 0, nil, &errBody))
	assert.Equal(t, string(services.KindNotFound), errBody["kind"])

	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/users/x", 0, nil, nil))
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, "/users", 0, nil, nil))
}

func TestEventsAndRedeemStatuses(t *testing.T) {
	a := newTestApp(t)
	ctx := t.Context()
	_, _, err := a.ledger.Users.RegisterUserIfAbsent(ctx, 1, "")
	require.NoError(t, err)
	cheap, _, err := a.ledger.Rewards.CreateReward(ctx, "Cheap", "", 5, 1)
	require.NoError(t, err)
	pricey, _, err := a.ledger.Rewards.CreateReward(ctx, "Pricey", "", 500, 1)
	require.NoError(t, err)

	var out services.Outcome
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/events", 1, map[string]any{"kind": "test"}, &out))
	assert.Equal(t, services.StatusAwarded, out.Status)
	assert.Equal(t, int64(5), out.Points)

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/events", 1, map[string]any{"kind": "test"}, &out))
	assert.Equal(t, services.StatusAlreadyCompleted, out.Status)

	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, "/events", 1, map[string]any{"kind": "vote"}, nil))

	redeem := func(userID int64, id uint) int {
		return a.do(t, http.MethodPost, "/rewards/"+strconv.FormatUint(uint64(id), 10)+"/redeem", userID, nil, nil)
	}
	assert.Equal(t, http.StatusUnauthorized, redeem(0, cheap.ID))
	assert.Equal(t, http.StatusUnprocessableEntity, redeem(1, pricey.ID))
	assert.Equal(t, http.StatusNotFound, redeem(1, 999))

	var res services.RedemptionResult
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/rewards/"+strconv.FormatUint(uint64(cheap.ID), 10)+"/redeem", 1, nil, &res))
	assert.Zero(t, res.RemainingPoints)
	assert.Equal(t, http.StatusConflict, redeem(1, cheap.ID))

	var receipts []models.Redemption
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/users/1/redemptions", 0, nil, &receipts))
	assert.Len(t, receipts, 1)

	a.store.SetUnavailable(true)
	var errBody map[string]string
	assert.Equal(t, http.StatusServiceUnavailable, a.do(t, http.MethodGet, "/users/1", 0, nil, &errBody))
	assert.Equal(t, "ledger temporarily unavailable, retry later", errBody["error"])
	a.store.SetUnavailable(false)
}

func TestRanking(t *testing.T) {
	a := newTestApp(t)
	ctx := t.Context()
	for id, pts := range map[int64]int64{1: 10, 2: 30, 3: 20} {
		_, _, err := a.ledger.Users.RegisterUserIfAbsent(ctx, id, "")
		require.NoError(t, err)
		_, err = a.ledger.Progression.AwardPoints(ctx, id, pts)
		require.NoError(t, err)
	}

	var top []services.RankingEntry
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/ranking?limit=2", 0, nil, &top))
	require.Len(t, top, 2)
	assert.Equal(t, int64(2), top[0].ExternalUserID)
	assert.Equal(t, int64(3), top[1].ExternalUserID)
}

func TestAdminRoutes(t *testing.T) {
	a := newTestApp(t)

	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodGet, "/admin/export", 0, nil, nil))
	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodGet, "/admin/export", 1, nil, nil))

	var mission models.Mission
	assert.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/admin/missions", adminID, map[string]any{
		"title": "Comment on the post", "points": 10, "type": "post",
	}, &mission))
	assert.True(t, mission.Active)

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodPatch, "/admin/missions/"+strconv.FormatUint(uint64(mission.ID), 10), adminID, map[string]any{
		"post_id": 555,
	}, &mission))
	require.NotNil(t, mission.PostID)
	assert.Equal(t, int64(555), *mission.PostID)

	var upsert struct {
		Reward  models.Reward `json:"reward"`
		Created bool          `json:"created"`
	}
	assert.Equal(t, http.StatusCreated, a.do(t, http.MethodPut, "/admin/rewards", adminID, map[string]any{
		"name": "Mug", "cost": 20, "stock": 3,
	}, &upsert))
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodPut, "/admin/rewards", adminID, map[string]any{
		"name": "Mug", "cost": 25, "stock": 9,
	}, &upsert))
	assert.Equal(t, int64(3), upsert.Reward.Stock)

	_, _, err := a.ledger.Users.RegisterUserIfAbsent(t.Context(), 7, "")
	require.NoError(t, err)

	var award services.AwardResult
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/admin/users/7/points", adminID, map[string]any{"delta": 25}, &award))
	assert.Equal(t, 3, award.Level)

	var granted map[string]bool
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/admin/users/7/achievements", adminID, map[string]any{"name": "Helper"}, &granted))
	assert.True(t, granted["granted"])

	assert.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/admin/users/7/completions", adminID, map[string]any{"key": "checkin-1", "points": 5}, nil))
	assert.Equal(t, http.StatusConflict, a.do(t, http.MethodPost, "/admin/users/7/completions", adminID, map[string]any{"key": "checkin-1", "points": 5}, nil))
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, "/admin/users/7/completions", adminID, map[string]any{"key": "mission:1", "points": 5}, nil))

	var users []models.User
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/admin/export", adminID, nil, &users))
	require.Len(t, users, 1)
	assert.Equal(t, int64(30), users[0].Points)

	var report services.SeasonReport
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/admin/season/reset", adminID, map[string]any{"label": "autumn"}, &report))
	assert.Equal(t, int64(1), report.Users)

	var receipts []models.Redemption
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/admin/redemptions?external_user_id=7", adminID, nil, &receipts))
	assert.Empty(t, receipts)
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestApp(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "ledger_points_awarded_total")
}

func TestWriteRedemptionEvents(t *testing.T) {
	var buf bytes.Buffer
	list := []models.Redemption{
		{ID: "r-1", ExternalUserID: 1, RewardID: 2, RewardName: "Mug", Cost: 20, CreatedAt: time.Unix(0, 0).UTC()},
		{ID: "r-2", ExternalUserID: 3, RewardID: 2, RewardName: "Mug", Cost: 20, CreatedAt: time.Unix(0, 0).UTC()},
	}
	require.NoError(t, writeRedemptionEvents(&buf, list))

	frames := strings.Split(strings.TrimSuffix(buf.String(), "\n\n"), "\n\n")
	require.Len(t, frames, 2)
	lines := strings.Split(frames[0], "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "event: redemption", lines[0])
	assert.Equal(t, "id: r-1", lines[1])

	var decoded models.Redemption
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(lines[2], "data: ")), &decoded))
	assert.Equal(t, "Mug", decoded.RewardName)
}

func TestRedemptionFeed_TracksReceiptsByID(t *testing.T) {
	old := models.Redemption{ID: "r-0"}
	feed := newRedemptionFeed([]models.Redemption{old})

	// B commits first even though A was inserted earlier.
	a, b := models.Redemption{ID: "r-a"}, models.Redemption{ID: "r-b"}
	assert.Equal(t, []models.Redemption{b}, feed.unseen([]models.Redemption{old, b}))
	assert.Equal(t, []models.Redemption{a}, feed.unseen([]models.Redemption{old, a, b}))
	assert.Empty(t, feed.unseen([]models.Redemption{old, a, b}))
}

// readFrame reads one SSE frame, up to the blank line that ends it.
func readFrame(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	var lines []string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			return strings.Join(lines, "\n")
		}
		lines = append(lines, line)
	}
}

func TestPumpRedemptions(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	_, _, err := a.ledger.Users.RegisterUserIfAbsent(ctx, 1, "")
	require.NoError(t, err)
	_, err = a.ledger.Progression.AwardPoints(ctx, 1, 50)
	require.NoError(t, err)
	reward, _, err := a.ledger.Rewards.CreateReward(ctx, "Mug", "", 10, 5)
	require.NoError(t, err)
	before, err := a.ledger.Rewards.Redeem(ctx, 1, reward.ID)
	require.NoError(t, err)

	pr, pw := io.Pipe()
	tick := make(chan time.Time)
	streamCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		pumpRedemptions(streamCtx, bufio.NewWriter(pw), a.ledger, tick)
	}()
	r := bufio.NewReader(pr)
	assert.Equal(t, ":", readFrame(t, r))

	// A quiet tick still sends a keepalive.
	tick <- time.Now()
	assert.Equal(t, ":", readFrame(t, r))

	after, err := a.ledger.Rewards.Redeem(ctx, 1, reward.ID)
	require.NoError(t, err)
	tick <- time.Now()
	frame := readFrame(t, r)
	assert.Contains(t, frame, "id: "+after.RedemptionID)
	assert.NotContains(t, frame, before.RedemptionID)
	assert.Equal(t, ":", readFrame(t, r))

	// Nothing is sent twice.
	tick <- time.Now()
	assert.Equal(t, ":", readFrame(t, r))

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not stop after cancel")
	}
}

func TestPumpRedemptions_StopsWhenClientLeaves(t *testing.T) {
	a := newTestApp(t)
	pr, pw := io.Pipe()
	tick := make(chan time.Time)
	done := make(chan struct{})
	go func() {
		defer close(done)
		pumpRedemptions(context.Background(), bufio.NewWriter(pw), a.ledger, tick)
	}()
	assert.Equal(t, ":", readFrame(t, bufio.NewReader(pr)))

	require.NoError(t, pr.Close())
	tick <- time.Now()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream kept running after the client left")
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(services.KindNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(services.KindAlreadyCompleted))
	assert.Equal(t, http.StatusConflict, statusFor(services.KindOutOfStock))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(services.KindInsufficientPoints))
	assert.Equal(t, http.StatusBadRequest, statusFor(services.KindInvalidArgument))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(services.KindStoreUnavailable))
}
