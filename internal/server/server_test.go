package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"vintner/internal/config"
	"vintner/internal/db"
	"vintner/internal/domain"
	"vintner/internal/engine"
	"vintner/internal/migrate"
)

const testJWTSecret = "server-test-secret"

type testServer struct {
	URL    string
	Token  string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("estate")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	if _, err := e.NewGame(context.Background(), cfg.Game.ID, "Test Estate"); err != nil {
		t.Fatalf("new game: %v", err)
	}
	if err := e.Repo.UpsertGameConfig(context.Background(), cfg.Game.ID, cfg); err != nil {
		t.Fatalf("seed game config: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{JWTSecret: testJWTSecret}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Token:  mintToken(t, "tester"),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func mintToken(t *testing.T, subject string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func (s *testServer) doJSON(t *testing.T, method, urlPath string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.URL+urlPath, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.Token)
	res, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestPlantingRoundTrip(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	gameID := "estate"

	res, data := srv.doJSON(t, http.MethodPost, "/v0/games/"+gameID+"/vineyards", map[string]any{
		"name":     "North Slope",
		"acres":    4.0,
		"altitude": 250.0,
		"price":    0.0,
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("buy vineyard status %d: %s", res.StatusCode, string(data))
	}
	var vineyard domain.Vineyard
	if err := json.Unmarshal(data, &vineyard); err != nil {
		t.Fatalf("unmarshal vineyard: %v", err)
	}

	res, data = srv.doJSON(t, http.MethodPost, "/v0/games/"+gameID+"/vineyards/"+vineyard.ID+"/plant", map[string]any{
		"grape":     "Sangiovese",
		"density":   1000,
		"fragility": 0.2,
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("plant status %d: %s", res.StatusCode, string(data))
	}
	var act domain.Activity
	if err := json.Unmarshal(data, &act); err != nil {
		t.Fatalf("unmarshal activity: %v", err)
	}
	if act.Category != domain.CategoryPlanting {
		t.Fatalf("expected planting activity, got %s", act.Category)
	}
	if act.TotalWork <= 0 {
		t.Fatalf("expected positive total work, got %f", act.TotalWork)
	}

	// Planting the same plot twice is rejected while the first run exists.
	res, data = srv.doJSON(t, http.MethodPost, "/v0/games/"+gameID+"/vineyards/"+vineyard.ID+"/plant", map[string]any{
		"grape":   "Sangiovese",
		"density": 1000,
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected duplicate plant rejection, got %d: %s", res.StatusCode, string(data))
	}

	res, data = srv.doJSON(t, http.MethodGet, "/v0/games/"+gameID+"/activities", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list activities status %d: %s", res.StatusCode, string(data))
	}
	var acts []domain.Activity
	if err := json.Unmarshal(data, &acts); err != nil {
		t.Fatalf("unmarshal activities: %v", err)
	}
	if len(acts) != 1 || acts[0].ID != act.ID {
		t.Fatalf("expected one activity %s, got %+v", act.ID, acts)
	}
}

func TestAdvanceWithoutStaffLeavesWorkUntouched(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	gameID := "estate"

	_, data := srv.doJSON(t, http.MethodPost, "/v0/games/"+gameID+"/vineyards", map[string]any{
		"name": "South Field", "acres": 2.0, "altitude": 180.0, "price": 0.0,
	})
	var vineyard domain.Vineyard
	_ = json.Unmarshal(data, &vineyard)

	res, data := srv.doJSON(t, http.MethodPost, "/v0/games/"+gameID+"/vineyards/"+vineyard.ID+"/plant", map[string]any{
		"grape": "Merlot", "density": 800,
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("plant status %d: %s", res.StatusCode, string(data))
	}
	var act domain.Activity
	_ = json.Unmarshal(data, &act)

	res, data = srv.doJSON(t, http.MethodPost, "/v0/games/"+gameID+"/advance", map[string]any{"weeks": 3})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("advance status %d: %s", res.StatusCode, string(data))
	}
	var reports []engine.TickReport
	if err := json.Unmarshal(data, &reports); err != nil {
		t.Fatalf("unmarshal reports: %v", err)
	}
	if len(reports) != 3 {
		t.Fatalf("expected 3 tick reports, got %d", len(reports))
	}
	if reports[2].Game.Week != 4 {
		t.Fatalf("expected week 4 after three ticks, got %d", reports[2].Game.Week)
	}

	res, data = srv.doJSON(t, http.MethodGet, "/v0/games/"+gameID+"/activities/"+act.ID, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get activity status %d: %s", res.StatusCode, string(data))
	}
	var fetched domain.Activity
	_ = json.Unmarshal(data, &fetched)
	if fetched.AppliedWork != 0 {
		t.Fatalf("unstaffed activity should not progress, applied %f", fetched.AppliedWork)
	}
}

func TestCancelFermentationConflicts(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	gameID := "estate"

	// Cancelling a missing activity is a 404.
	res, data := srv.doJSON(t, http.MethodDelete, "/v0/games/"+gameID+"/activities/nope", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v0/games", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}

	// Health stays open.
	healthRes, err := srv.Client().Get(srv.URL + "/v0/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	defer healthRes.Body.Close()
	if healthRes.StatusCode != http.StatusOK {
		t.Fatalf("expected health 200, got %d", healthRes.StatusCode)
	}
}

func TestStaffSearchInsufficientFunds(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	gameID := "estate"

	res, data := srv.doJSON(t, http.MethodPost, "/v0/games/"+gameID+"/staff/search", map[string]any{
		"candidates":  1000000,
		"skill_level": 0.5,
	})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", res.StatusCode, string(data))
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if body.Error.Code != "insufficient_funds" {
		t.Fatalf("expected insufficient_funds, got %q", body.Error.Code)
	}
}
