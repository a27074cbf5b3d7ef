package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"perp-trader/internal/order"
	"perp-trader/internal/state"
	"perp-trader/pkg/catalog"
	"perp-trader/pkg/config"
	"perp-trader/pkg/exchanges/common"
	"perp-trader/pkg/exchanges/mock"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) (*Server, *state.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cat, err := catalog.Load("")
	if err != nil {
		t.Fatalf("catalog load: %v", err)
	}
	store := state.NewStore()
	orders := order.NewManager(mock.New(10000, 3), nil, nil, cat)
	return NewServer(config.DefaultTradingConfig(), store, orders, nil, nil, testSecret), store
}

func bearer(t *testing.T) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ops",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + token
}

func TestHealthzNoAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, expected 200", w.Code)
	}
}

func TestHealthzReportsHalt(t *testing.T) {
	srv, store := newTestServer(t)
	store.SetHalted("too many errors")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, expected 503 when halted", w.Code)
	}
}

func TestAPIRejectsMissingToken(t *testing.T) {
	srv, _ := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d, expected 401", w.Code)
	}
}

func TestAPIRejectsBadToken(t *testing.T) {
	srv, _ := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d, expected 401", w.Code)
	}
}

func TestStatusWithToken(t *testing.T) {
	srv, store := newTestServer(t)
	store.SetTick(7)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", bearer(t))
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["tick"].(float64) != 7 {
		t.Fatalf("tick=%v, expected 7", body["tick"])
	}
}

func TestPositionsEndpoint(t *testing.T) {
	srv, store := newTestServer(t)
	store.ReplacePositions([]common.Position{{Symbol: "ETH", Qty: 2, EntryPrice: 3000}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/positions", nil)
	req.Header.Set("Authorization", bearer(t))
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var body struct {
		Positions []common.Position `json:"positions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Positions) != 1 || body.Positions[0].Symbol != "ETH" {
		t.Fatalf("positions=%+v, expected one ETH entry", body.Positions)
	}
}

func TestBacktestEndpointWithInlineCloses(t *testing.T) {
	srv, _ := newTestServer(t)

	closes := make([]float64, 0, 120)
	for i := 0; i < 60; i++ {
		closes = append(closes, 100)
	}
	for i := 0; i < 60; i++ {
		closes = append(closes, 100+float64(i))
	}
	payload, _ := json.Marshal(map[string]any{
		"symbol":          "ETH",
		"closes":          closes,
		"initial_balance": 1000,
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/backtest", bytes.NewReader(payload))
	req.Header.Set("Authorization", bearer(t))
	req.Header.Set("Content-Type", "application/json")
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var report struct {
		Symbol  string `json:"symbol"`
		Samples int    `json:"samples"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Symbol != "ETH" || report.Samples != 120 {
		t.Fatalf("report=%+v, expected ETH over 120 samples", report)
	}
}

func TestBacktestRejectsShortSeries(t *testing.T) {
	srv, _ := newTestServer(t)
	payload, _ := json.Marshal(map[string]any{
		"symbol": "ETH",
		"closes": []float64{1, 2, 3},
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/backtest", bytes.NewReader(payload))
	req.Header.Set("Authorization", bearer(t))
	req.Header.Set("Content-Type", "application/json")
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, expected 400", w.Code)
	}
}
