// Package session composes the per-connection pipeline (keypoint
// extractor, sliding window, classifier, stability filter, sentence
// assembler, rate limiter) and runs the per-frame connection handler loop.
// One Handler is owned by exactly one WebSocket connection, created on
// accept and closed on disconnect.
package session

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/signbridge/sign-inference/internal/buffer"
	"github.com/signbridge/sign-inference/internal/classifier"
	"github.com/signbridge/sign-inference/internal/keypoints"
	"github.com/signbridge/sign-inference/internal/logging"
	"github.com/signbridge/sign-inference/internal/metrics"
	"github.com/signbridge/sign-inference/internal/ratelimit"
	"github.com/signbridge/sign-inference/internal/sentence"
	"github.com/signbridge/sign-inference/internal/stability"
	"github.com/signbridge/sign-inference/internal/workerpool"
)

// Config holds the tunables a Handler needs from the global config.
type Config struct {
	Actions             []string
	SequenceLength      int
	ConfidenceThreshold float64
	StabilityWindow     int
	SentenceTimeout     time.Duration
	RateLimitFrames     int
	RateLimitWindow     time.Duration
	MaxFramePayload     int
	DetectionConfidence float64
	TrackingConfidence  float64
}

// Handler owns one connection's entire pipeline state. Not safe for
// concurrent use — the caller (internal/wsapi) must serialize calls to
// HandleInbound per connection and process frames in strict FIFO order.
type Handler struct {
	id     string
	log    *slog.Logger
	cfg    Config
	model  classifier.Model
	metric *metrics.Registry
	pool   *workerpool.Pool

	extractor  *keypoints.Extractor
	window     *buffer.Window
	stability  *stability.Filter
	assembler  *sentence.Assembler
	limiter    *ratelimit.Limiter
	framesSeen int
}

// New creates a Handler for one new connection. pool may be nil, in which
// case inference and keypoint extraction run inline on the caller's
// goroutine instead of being offloaded — used by tests and by any caller
// that hasn't configured a shared pool.
func New(cfg Config, model classifier.Model, metricReg *metrics.Registry, extractorClient keypoints.HolisticClient, pool *workerpool.Pool) *Handler {
	id := uuid.NewString()
	return &Handler{
		id:        id,
		log:       logging.WithSession(logging.L("session"), id),
		cfg:       cfg,
		model:     model,
		metric:    metricReg,
		pool:      pool,
		extractor: keypoints.New(extractorClient, keypoints.Config{
			DetectionConfidence: cfg.DetectionConfidence,
			TrackingConfidence:  cfg.TrackingConfidence,
		}),
		window:    buffer.New(cfg.SequenceLength),
		stability: stability.New(cfg.StabilityWindow, cfg.ConfidenceThreshold),
		assembler: sentence.New(cfg.SentenceTimeout),
		limiter:   ratelimit.New(cfg.RateLimitFrames, cfg.RateLimitWindow),
	}
}

// runOffloaded submits fn to the shared worker pool and blocks until it
// completes, preserving strict per-connection frame ordering: the caller's
// goroutine does not read the next frame until this one finishes. Falls
// back to running fn inline if no pool is configured or the pool's queue
// is full.
func (h *Handler) runOffloaded(fn func()) {
	if h.pool == nil {
		fn()
		return
	}
	done := make(chan struct{})
	if !h.pool.Submit(func() {
		defer close(done)
		fn()
	}) {
		fn()
		return
	}
	<-done
}

// ID returns this connection's session correlation id (log-only, never
// sent to the client).
func (h *Handler) ID() string {
	return h.id
}

// Close releases the keypoint extractor's resources. Must be called once
// on disconnect.
func (h *Handler) Close() error {
	return h.extractor.Close()
}

// inboundEnvelope is the generic client->server message shape.
type inboundEnvelope struct {
	Type  string `json:"type"`
	Frame string `json:"frame"`
}

// HandleInbound implements steps 2-15 of the connection handler loop for
// one raw inbound message. It returns zero or more responses to send, in
// order (sentence_complete always precedes its triggering sign_prediction).
func (h *Handler) HandleInbound(raw []byte) []Response {
	var msg inboundEnvelope
	if err := json.Unmarshal(raw, &msg); err != nil {
		return []Response{ErrorResponse{Type: "error", Message: "Invalid JSON"}}
	}

	if msg.Type != "frame" {
		return []Response{ErrorResponse{Type: "error", Message: fmt.Sprintf("Unknown message type: %s", msg.Type)}}
	}

	return h.handleFrame(msg.Frame, time.Now())
}

func (h *Handler) handleFrame(raw string, now time.Time) (responses []Response) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("panic while handling frame, recovering", "panic", r)
			responses = []Response{ErrorResponse{Type: "error", Message: "Failed to decode frame"}}
		}
	}()

	// Step 4: missing/empty/whitespace frame field -> skip silently.
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	// Step 5: strip optional data-URL prefix.
	payload := raw
	if idx := strings.Index(raw, ","); idx >= 0 {
		payload = raw[idx+1:]
	}

	// Step 6: payload size guard (silent drop, server-side warning only).
	if ratelimit.PayloadTooLarge(payload, h.cfg.MaxFramePayload) {
		h.log.Warn("frame payload exceeds max size, dropping", "size", len(payload))
		return nil
	}

	// Step 7: rate limiter.
	if !h.limiter.Allow(now) {
		msg := fmt.Sprintf("Rate limit exceeded: max %d frames per %d seconds",
			h.cfg.RateLimitFrames, int(h.cfg.RateLimitWindow.Seconds()))
		return []Response{ErrorResponse{Type: "error", Message: msg}}
	}

	// Step 8: base64 decode.
	jpegBytes, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil
	}

	// Step 9: keypoint extraction, offloaded to the shared worker pool.
	// The connection goroutine blocks here, so the next frame is not read
	// until this one's extraction finishes.
	var outcome keypoints.Outcome
	extractStart := time.Now()
	h.runOffloaded(func() {
		outcome = h.extractor.Process(jpegBytes)
	})
	h.metric.RecordLandmarkExtraction(float64(time.Since(extractStart).Microseconds()) / 1000.0)
	if !outcome.Ok {
		return nil
	}

	// Step 10: append to buffer, increment frame counter.
	h.window.Append(outcome.Vector)
	h.framesSeen++

	// Step 11: buffering phase.
	if !h.window.IsFull() {
		return []Response{BufferingResponse{
			Type:            "buffering",
			FramesCollected: h.window.Len(),
			FramesNeeded:    h.window.Capacity(),
			HandsDetected:   outcome.HandsDetected,
		}}
	}

	// Step 12: classify, also offloaded to the pool.
	if h.model == nil {
		return []Response{ErrorResponse{Type: "error", Message: "Model not loaded"}}
	}
	var probs []float32
	var latency time.Duration
	var predictErr error
	h.runOffloaded(func() {
		probs, latency, predictErr = h.model.Predict(h.window.Snapshot())
	})
	if err := predictErr; err != nil {
		h.log.Warn("classifier prediction failed", "error", err)
		return []Response{ErrorResponse{Type: "error", Message: "Classifier error"}}
	}
	latencyMs := float64(latency.Microseconds()) / 1000.0
	h.metric.RecordInference(latencyMs)

	// Step 13: top sign/confidence, update stability filter.
	topSign, topConfidence, allPredictions := topAndAll(h.cfg.Actions, probs)
	stabilityResult := h.stability.Update(topSign, topConfidence)

	// Step 14: feed sentence assembler on new-sign events.
	if stabilityResult.IsNewSign {
		if completed, ok := h.assembler.OnNewSign(stabilityResult.Sign, now); ok {
			responses = append(responses, SentenceCompleteResponse{
				Type:     "sentence_complete",
				Sentence: completed,
			})
		}
	}

	// Step 15: sign_prediction response.
	responses = append(responses, SignPredictionResponse{
		Type:               "sign_prediction",
		Sign:               topSign,
		Confidence:         round4(topConfidence),
		IsStable:           stabilityResult.IsStable,
		IsNewSign:          stabilityResult.IsNewSign,
		HandsDetected:      outcome.HandsDetected,
		AllPredictions:     allPredictions,
		FramesProcessed:    h.framesSeen,
		TotalInferenceMs:   round1(latencyMs),
		SentenceInProgress: h.assembler.CurrentSentence(),
	})

	return responses
}

func topAndAll(actions []string, probs []float32) (topSign string, topConfidence float64, all map[string]float64) {
	all = make(map[string]float64, len(actions))
	best := -1
	var bestProb float32 = -1
	for i, label := range actions {
		var p float32
		if i < len(probs) {
			p = probs[i]
		}
		all[label] = round4(float64(p))
		if p > bestProb {
			bestProb = p
			best = i
		}
	}
	if best >= 0 {
		topSign = actions[best]
		topConfidence = float64(bestProb)
	}
	return topSign, topConfidence, all
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
