package wsapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signbridge/sign-inference/internal/health"
	"github.com/signbridge/sign-inference/internal/metrics"
	"github.com/signbridge/sign-inference/internal/session"
)

func testServer(apiKey string) *Server {
	cfg := session.Config{
		Actions:             []string{"hello", "help"},
		SequenceLength:      2,
		ConfidenceThreshold: 0.7,
		StabilityWindow:     1,
		SentenceTimeout:     2 * time.Second,
		RateLimitFrames:     60,
		RateLimitWindow:     10 * time.Second,
		MaxFramePayload:     5_000_000,
	}
	monitor := health.NewMonitor()
	return New(apiKey, []string{"https://allowed.example"}, cfg, nil, metrics.NewRegistry(), monitor, nil, nil)
}

func TestHandleHealthReportsModelNotLoaded(t *testing.T) {
	srv := testServer("")
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode health response: %v", err)
	}
	if resp.ModelLoaded {
		t.Fatalf("expected model_loaded=false")
	}
	if resp.Status != "degraded" {
		t.Fatalf("expected degraded status with no model loaded, got %q", resp.Status)
	}
	if resp.SequenceLength != 2 || len(resp.Actions) != 2 {
		t.Fatalf("unexpected echoed config: %#v", resp)
	}
}

func TestCORSRejectsDisallowedOrigin(t *testing.T) {
	srv := testServer("")
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("expected no CORS header for a disallowed origin")
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	srv := testServer("")
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://allowed.example")
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://allowed.example" {
		t.Fatalf("Access-Control-Allow-Origin = %q, want the allowed origin", got)
	}
}

func dialWS(t *testing.T, ts *httptest.Server, query string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("parse test server url: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws/sign-detection"
	u.RawQuery = query
	return websocket.DefaultDialer.Dial(u.String(), nil)
}

func TestWebSocketRejectsInvalidAPIKey(t *testing.T) {
	srv := testServer("secret")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := dialWS(t, ts, "api_key=wrong")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_, _, err = conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("expected a close error, got %v", err)
	}
	if closeErr.Code != closeInvalidAPIKey {
		t.Fatalf("close code = %d, want %d", closeErr.Code, closeInvalidAPIKey)
	}
	if !strings.Contains(closeErr.Text, "Invalid or missing API key") {
		t.Fatalf("close reason = %q", closeErr.Text)
	}
}

func TestWebSocketAcceptsValidAPIKeyAndBuffers(t *testing.T) {
	srv := testServer("secret")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := dialWS(t, ts, "api_key=secret")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	msg, _ := json.Marshal(map[string]string{"type": "frame", "frame": ""})
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		t.Fatalf("write: %v", err)
	}

	msg, _ = json.Marshal(map[string]string{"type": "bogus"})
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var resp map[string]any
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["type"] != "error" {
		t.Fatalf("expected an error response for the unknown message type, got %#v", resp)
	}
}
