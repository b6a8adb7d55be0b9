// Package wsapi is the server shell: WebSocket upgrade and connection
// lifecycle, API key authentication, CORS, and the /health HTTP endpoint.
// It knows nothing about feature vectors or sign classification — all of
// that lives behind internal/session.Handler.
package wsapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signbridge/sign-inference/internal/classifier"
	"github.com/signbridge/sign-inference/internal/health"
	"github.com/signbridge/sign-inference/internal/keypoints"
	"github.com/signbridge/sign-inference/internal/logging"
	"github.com/signbridge/sign-inference/internal/metrics"
	"github.com/signbridge/sign-inference/internal/session"
	"github.com/signbridge/sign-inference/internal/workerpool"
)

var log = logging.L("wsapi")

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

// closeInvalidAPIKey is the close code sent when a connection fails API
// key authentication. 4000-4999 is the user-defined WS close code range.
const closeInvalidAPIKey = 4003

// Server wires one Handler per accepted connection and serves /health.
type Server struct {
	apiKey       string
	corsOrigins  []string
	sessionCfg   session.Config
	model        classifier.Model
	metrics      *metrics.Registry
	monitor      *health.Monitor
	pool         *workerpool.Pool
	newExtractor func() keypoints.HolisticClient
	upgrader     websocket.Upgrader

	connMu      sync.Mutex
	activeConns int
}

// New creates a Server. newExtractor may be nil, in which case every
// connection gets the deterministic stub landmark detector. pool may be
// nil, in which case inference and keypoint extraction run inline on each
// connection's own goroutine instead of being offloaded.
func New(apiKey string, corsOrigins []string, sessionCfg session.Config, model classifier.Model, metricsReg *metrics.Registry, monitor *health.Monitor, pool *workerpool.Pool, newExtractor func() keypoints.HolisticClient) *Server {
	s := &Server{
		apiKey:       apiKey,
		corsOrigins:  parseOrigins(corsOrigins),
		sessionCfg:   sessionCfg,
		model:        model,
		metrics:      metricsReg,
		monitor:      monitor,
		pool:         pool,
		newExtractor: newExtractor,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(s.corsOrigins, r.Header.Get("Origin"))
		},
	}
	return s
}

// Handler returns the HTTP handler exposing /health and /ws/sign-detection.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws/sign-detection", s.handleWebSocket)
	return withCORS(s.corsOrigins, mux)
}

func withCORS(allowed []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if originAllowed(allowed, origin) && origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type healthResponse struct {
	Status         string               `json:"status"`
	ModelLoaded    bool                 `json:"model_loaded"`
	Actions        []string             `json:"actions"`
	SequenceLength int                  `json:"sequence_length"`
	AvgInferenceMs float64              `json:"avg_inference_ms"`
	Process        *health.ProcessStats `json:"process,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if s.monitor != nil {
		status = string(s.monitor.Overall())
	}
	if s.model == nil {
		status = "degraded"
	}

	resp := healthResponse{
		Status:         status,
		ModelLoaded:    s.model != nil,
		Actions:        s.sessionCfg.Actions,
		SequenceLength: s.sessionCfg.SequenceLength,
		AvgInferenceMs: s.metrics.AvgInferenceMs(),
	}

	s.connMu.Lock()
	active := s.activeConns
	s.connMu.Unlock()
	if stats, err := health.SampleProcess(active); err == nil {
		resp.Process = &stats
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "error", err)
		return
	}

	if s.apiKey != "" && r.URL.Query().Get("api_key") != s.apiKey {
		closeMsg := websocket.FormatCloseMessage(closeInvalidAPIKey, "Invalid or missing API key")
		conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(writeWait))
		conn.Close()
		return
	}

	s.connMu.Lock()
	s.activeConns++
	s.connMu.Unlock()
	defer func() {
		s.connMu.Lock()
		s.activeConns--
		s.connMu.Unlock()
	}()

	var extractorClient keypoints.HolisticClient
	if s.newExtractor != nil {
		extractorClient = s.newExtractor()
	}
	handler := session.New(s.sessionCfg, s.model, s.metrics, extractorClient, s.pool)
	defer handler.Close()

	s.serveConnection(conn, handler)
}

func (s *Server) serveConnection(conn *websocket.Conn, handler *session.Handler) {
	log := logging.WithSession(log, handler.ID())
	log.Info("connection established")
	defer log.Info("connection closed")

	conn.SetReadLimit(maxMessageSize + int64(s.sessionCfg.MaxFramePayload))
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	writeMu := &sync.Mutex{}
	done := make(chan struct{})
	defer close(done)
	go keepAlivePump(conn, writeMu, done)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("read error", "error", err)
			}
			return
		}

		responses := handler.HandleInbound(raw)
		for _, resp := range responses {
			payload, err := json.Marshal(resp)
			if err != nil {
				log.Error("failed to marshal response", "error", err)
				continue
			}
			writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err = conn.WriteMessage(websocket.TextMessage, payload)
			writeMu.Unlock()
			if err != nil {
				log.Warn("write error", "error", err)
				return
			}
		}
	}
}

func keepAlivePump(conn *websocket.Conn, writeMu *sync.Mutex, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
