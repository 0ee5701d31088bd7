package api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/tileclaim/internal/api"
	"github.com/mcoot/tileclaim/internal/api/apierr"
	"github.com/mcoot/tileclaim/internal/api/middleware"
	"github.com/mcoot/tileclaim/internal/api/response"
	"github.com/mcoot/tileclaim/internal/factory"
	"github.com/mcoot/tileclaim/internal/model"
	"github.com/mcoot/tileclaim/internal/services/cooldown"
	"github.com/mcoot/tileclaim/internal/testutil"
)

const adminToken = "admin-secret"

type APISuite struct {
	suite.Suite
	app     *factory.TestApp
	handler http.Handler
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}

func (s *APISuite) SetupTest() {
	s.app = factory.NewTestApp(4)
	s.handler = api.NewRouter(api.RouterConfig{
		Logger:        testutil.NopLogger(),
		App:           s.app.App,
		AdminToken:    adminToken,
		ResetSchedule: "0 0 * * *",
		StoreTimeout:  time.Second,
	})
}

func (s *APISuite) TearDownTest() {
	s.Require().NoError(s.app.Shutdown(context.Background()))
}

func (s *APISuite) request(method, path string, body any, token string) *httptest.ResponseRecorder {
	var reqBody bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&reqBody).Encode(body))
	}

	req := httptest.NewRequest(method, path, &reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func (s *APISuite) admin(method, path string, body any) *httptest.ResponseRecorder {
	var reqBody bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&reqBody).Encode(body))
	}
	req := httptest.NewRequest(method, path, &reqBody)
	req.Header.Set(middleware.AdminTokenHeader, adminToken)
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](s *APISuite, rr *httptest.ResponseRecorder) T {
	var v T
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func (s *APISuite) assertError(rr *httptest.ResponseRecorder, status int, code string) {
	s.Equal(status, rr.Code, rr.Body.String())
	resp := decode[apierr.ErrorResponse](s, rr)
	s.Equal(code, resp.Error.Code)
}

func (s *APISuite) join(username string) response.Join {
	rr := s.request(http.MethodPost, "/api/v1/profiles", map[string]string{"username": username, "color": "#AABBCC"}, "")
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	return decode[response.Join](s, rr)
}

func (s *APISuite) board() response.Board {
	rr := s.request(http.MethodGet, "/api/v1/tiles", nil, "")
	s.Require().Equal(http.StatusOK, rr.Code)
	return decode[response.Board](s, rr)
}

func (s *APISuite) TestHealth() {
	rr := s.request(http.MethodGet, "/health", nil, "")
	s.Equal(http.StatusOK, rr.Code)
	health := decode[response.Health](s, rr)
	s.Equal("ok", health.Status)
	s.Equal("ok", health.Store)
}

func (s *APISuite) TestInfo() {
	rr := s.request(http.MethodGet, "/api/v1/info", nil, "")
	s.Require().Equal(http.StatusOK, rr.Code)

	info := decode[response.Info](s, rr)
	s.Equal(4, info.BoardSize)
	s.Equal(4, info.Unclaimed)
	s.Nil(info.LastResetAt)
	s.Require().NotNil(info.NextResetAt)
	s.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), info.NextResetAt.UTC())
	s.Equal("0 0 * * *", info.ResetSchedule)
}

func (s *APISuite) TestJoin() {
	joined := s.join("alice")
	s.True(joined.Created)
	s.NotEmpty(joined.Profile.ID)
	s.Equal("alice", joined.Profile.Username)
	s.Equal("#aabbcc", joined.Profile.Color)
	s.NotEmpty(joined.Token)

	// Joining again with the token returns the same profile
	rr := s.request(http.MethodPost, "/api/v1/profiles", map[string]string{"username": "ignored"}, joined.Token)
	s.Require().Equal(http.StatusOK, rr.Code)
	again := decode[response.Join](s, rr)
	s.False(again.Created)
	s.Equal(joined.Profile.ID, again.Profile.ID)
	s.Equal("alice", again.Profile.Username)
}

func (s *APISuite) TestJoinRejectsTakenUsername() {
	s.join("alice")

	rr := s.request(http.MethodPost, "/api/v1/profiles", map[string]string{"username": "Alice"}, "")
	s.assertError(rr, http.StatusConflict, apierr.CodeUsernameTaken)
}

func (s *APISuite) TestJoinValidation() {
	rr := s.request(http.MethodPost, "/api/v1/profiles", map[string]string{"username": ""}, "")
	s.assertError(rr, http.StatusBadRequest, apierr.CodeInvalidRequest)

	rr = s.request(http.MethodPost, "/api/v1/profiles", map[string]string{"username": "bob", "color": "blue"}, "")
	s.assertError(rr, http.StatusBadRequest, apierr.CodeInvalidRequest)

	rr = s.request(http.MethodPost, "/api/v1/profiles", map[string]any{"username": "bob", "admin": true}, "")
	s.assertError(rr, http.StatusBadRequest, apierr.CodeInvalidRequest)
}

func (s *APISuite) TestListTiles() {
	board := s.board()
	s.Equal(int64(0), board.Generation)
	s.Require().Len(board.Tiles, 4)
	for i, tile := range board.Tiles {
		s.Equal(i, tile.Index)
		s.Nil(tile.ClaimedBy)
	}
	s.Equal(90, board.Tiles[0].Rating)
}

func (s *APISuite) TestClaimRequiresAuth() {
	tileID := s.board().Tiles[0].ID

	rr := s.request(http.MethodPost, "/api/v1/tiles/"+tileID+"/claim", nil, "")
	s.assertError(rr, http.StatusUnauthorized, apierr.CodeUnauthorized)

	rr = s.request(http.MethodPost, "/api/v1/tiles/"+tileID+"/claim", nil, "not-a-token")
	s.assertError(rr, http.StatusUnauthorized, apierr.CodeUnauthorized)
}

func (s *APISuite) TestClaimFlow() {
	alice := s.join("alice")
	bob := s.join("bob")
	tiles := s.board().Tiles

	rr := s.request(http.MethodPost, "/api/v1/tiles/"+tiles[0].ID+"/claim", nil, alice.Token)
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	claimed := decode[response.Claim](s, rr)
	s.Equal(90, claimed.Score)
	s.Equal(s.app.Clock.Now().Add(time.Minute), claimed.CooldownUntil.UTC())
	s.Require().NotNil(claimed.Tile.ClaimedBy)
	s.Equal(alice.Profile.ID, *claimed.Tile.ClaimedBy)

	// Retrying the same tile reports it claimed, not the cooldown
	rr = s.request(http.MethodPost, "/api/v1/tiles/"+tiles[0].ID+"/claim", nil, alice.Token)
	s.assertError(rr, http.StatusConflict, apierr.CodeAlreadyClaimed)

	rr = s.request(http.MethodPost, "/api/v1/tiles/"+tiles[1].ID+"/claim", nil, alice.Token)
	s.assertError(rr, http.StatusConflict, apierr.CodeOnCooldown)

	rr = s.request(http.MethodPost, "/api/v1/tiles/"+tiles[0].ID+"/claim", nil, bob.Token)
	s.assertError(rr, http.StatusConflict, apierr.CodeAlreadyClaimed)

	rr = s.request(http.MethodPost, "/api/v1/tiles/missing/claim", nil, bob.Token)
	s.assertError(rr, http.StatusNotFound, apierr.CodeTileNotFound)

	s.app.MockClock.Advance(time.Minute)
	rr = s.request(http.MethodPost, "/api/v1/tiles/"+tiles[1].ID+"/claim", nil, alice.Token)
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	s.Equal(170, decode[response.Claim](s, rr).Score)
	s.True(s.app.WaitForTasks(time.Second))
}

func (s *APISuite) TestClaimForUnknownProfile() {
	token, _, err := s.app.AuthService.Issue("ghost")
	s.Require().NoError(err)

	rr := s.request(http.MethodPost, "/api/v1/tiles/"+s.board().Tiles[0].ID+"/claim", nil, token)
	s.assertError(rr, http.StatusNotFound, apierr.CodeProfileNotFound)
}

func (s *APISuite) TestLeaderboard() {
	rr := s.request(http.MethodGet, "/api/v1/leaderboard", nil, "")
	s.Require().Equal(http.StatusOK, rr.Code)
	s.Contains(rr.Body.String(), `"entries":[]`)

	alice := s.join("alice")
	bob := s.join("bob")
	tiles := s.board().Tiles
	s.Require().Equal(http.StatusOK, s.request(http.MethodPost, "/api/v1/tiles/"+tiles[1].ID+"/claim", nil, alice.Token).Code)
	s.Require().Equal(http.StatusOK, s.request(http.MethodPost, "/api/v1/tiles/"+tiles[0].ID+"/claim", nil, bob.Token).Code)

	rr = s.request(http.MethodGet, "/api/v1/leaderboard", nil, "")
	s.Require().Equal(http.StatusOK, rr.Code)
	board := decode[response.Leaderboard](s, rr)
	s.Require().Len(board.Entries, 2)
	s.Equal(bob.Profile.ID, board.Entries[0].ProfileID)
	s.Equal(1, board.Entries[0].Rank)
	s.Equal(90, board.Entries[0].Score)
	s.Equal(alice.Profile.ID, board.Entries[1].ProfileID)
	s.Equal(80, board.Entries[1].Score)
	s.Equal(1, board.Entries[1].TileCount)
	s.True(s.app.WaitForTasks(time.Second))
}

func (s *APISuite) TestProfileMe() {
	alice := s.join("alice")

	rr := s.request(http.MethodGet, "/api/v1/profiles/me", nil, "")
	s.assertError(rr, http.StatusUnauthorized, apierr.CodeUnauthorized)

	rr = s.request(http.MethodGet, "/api/v1/profiles/me", nil, alice.Token)
	s.Require().Equal(http.StatusOK, rr.Code)
	s.Equal("alice", decode[response.Profile](s, rr).Username)

	rr = s.request(http.MethodPatch, "/api/v1/profiles/me", map[string]string{"color": "#112233"}, alice.Token)
	s.Require().Equal(http.StatusOK, rr.Code)
	s.Equal("#112233", decode[response.Profile](s, rr).Color)

	rr = s.request(http.MethodPatch, "/api/v1/profiles/me", map[string]string{"color": "red"}, alice.Token)
	s.assertError(rr, http.StatusBadRequest, apierr.CodeInvalidRequest)
}

func (s *APISuite) TestAdminRequiresToken() {
	rr := s.request(http.MethodPost, "/api/v1/admin/reset", nil, "")
	s.assertError(rr, http.StatusForbidden, apierr.CodeForbidden)

	// A player token is not an admin token
	alice := s.join("alice")
	rr = s.request(http.MethodGet, "/api/v1/admin/cooldown-policy", nil, alice.Token)
	s.assertError(rr, http.StatusForbidden, apierr.CodeForbidden)
}

func (s *APISuite) TestAdminReset() {
	alice := s.join("alice")
	tiles := s.board().Tiles
	s.Require().Equal(http.StatusOK, s.request(http.MethodPost, "/api/v1/tiles/"+tiles[0].ID+"/claim", nil, alice.Token).Code)
	s.True(s.app.WaitForTasks(time.Second))

	rr := s.admin(http.MethodPost, "/api/v1/admin/reset", nil)
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	outcome := decode[response.Reset](s, rr)
	s.Equal(string(model.ResetStatusReset), outcome.Status)
	s.Equal(int64(1), outcome.Generation)

	board := s.board()
	s.Equal(int64(1), board.Generation)
	s.NotNil(board.ResetAt)
	for _, tile := range board.Tiles {
		s.Nil(tile.ClaimedBy)
	}
}

func (s *APISuite) TestAdminCooldownPolicy() {
	rr := s.admin(http.MethodGet, "/api/v1/admin/cooldown-policy", nil)
	s.Require().Equal(http.StatusOK, rr.Code)
	current := decode[cooldown.Policy](s, rr)
	s.Equal(time.Minute, current.For(95))

	next := cooldown.Policy{
		Steps:    []cooldown.Step{{MinRating: 50, Cooldown: cooldown.Duration(10 * time.Second)}},
		Fallback: cooldown.Duration(30 * time.Second),
	}
	rr = s.admin(http.MethodPut, "/api/v1/admin/cooldown-policy", next)
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	s.Equal(10*time.Second, s.app.CooldownService.For(95))

	invalid := cooldown.Policy{Fallback: 0}
	rr = s.admin(http.MethodPut, "/api/v1/admin/cooldown-policy", invalid)
	s.assertError(rr, http.StatusBadRequest, apierr.CodeInvalidRequest)
	s.Equal(10*time.Second, s.app.CooldownService.For(95))
}

func (s *APISuite) TestUnknownRoute() {
	rr := s.request(http.MethodGet, "/api/v1/nope", nil, "")
	s.Equal(http.StatusNotFound, rr.Code)
}

func (s *APISuite) waitForObservers(n int) {
	s.Require().Eventually(func() bool {
		return s.app.HubManager.SubscriberCount() == n
	}, 2*time.Second, 5*time.Millisecond)
}

func (s *APISuite) TestEventStream() {
	srv := httptest.NewServer(s.handler)
	defer srv.Close()

	alice := s.join("alice")
	tileID := s.board().Tiles[0].ID

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events", nil)
	s.Require().NoError(err)
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal("text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	readEvent := func(name string) string {
		for lines.Scan() {
			if lines.Text() != "event: "+name {
				continue
			}
			s.Require().True(lines.Scan())
			return strings.TrimPrefix(lines.Text(), "data: ")
		}
		s.FailNow("stream ended before " + name)
		return ""
	}

	readEvent("connected")
	s.waitForObservers(1)

	rr := s.request(http.MethodPost, "/api/v1/tiles/"+tileID+"/claim", nil, alice.Token)
	s.Require().Equal(http.StatusOK, rr.Code)

	var event model.Event
	s.Require().NoError(json.Unmarshal([]byte(readEvent(string(model.EventTileClaimed))), &event))
	s.Equal(model.EventTileClaimed, event.Type)
	payload, ok := event.Payload.(map[string]any)
	s.Require().True(ok)
	s.Equal(tileID, payload["tileId"])
	s.Equal(alice.Profile.ID, payload["claimedBy"])
}

func (s *APISuite) TestWebSocketStream() {
	srv := httptest.NewServer(s.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/ws", nil)
	s.Require().NoError(err)
	defer conn.CloseNow()
	s.waitForObservers(1)

	rr := s.admin(http.MethodPost, "/api/v1/admin/reset", nil)
	s.Require().Equal(http.StatusOK, rr.Code)

	var event model.Event
	s.Require().NoError(wsjson.Read(ctx, conn, &event))
	s.Equal(model.EventBoardReset, event.Type)
	s.Equal(int64(1), event.Generation)
}

func (s *APISuite) TestShutdownEndsOpenStreams() {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)

	cfg := api.DefaultServerConfig()
	cfg.ShutdownTimeout = 5 * time.Second
	server := api.NewServer(s.handler, cfg, testutil.NopLogger())
	server.RegisterOnShutdown(s.app.HubManager.CloseAll)
	served := make(chan error, 1)
	go func() { served <- server.Serve(ln) }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+ln.Addr().String()+"/api/v1/events", nil)
	s.Require().NoError(err)
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.waitForObservers(1)

	start := time.Now()
	s.Require().NoError(server.Shutdown(context.Background()))
	s.Less(time.Since(start), 2*time.Second)
	s.NoError(<-served)
}
