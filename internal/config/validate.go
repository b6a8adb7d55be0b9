package config

import (
	"fmt"
	"strings"

	"github.com/signbridge/sign-inference/internal/logging"
)

var log = logging.L("config")

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"warning": true,
	"error": true,
}

// Validate clamps every out-of-range or malformed field back to a safe
// default, logs a warning for each correction, and returns the collected
// warnings. It never fails — this service starts with defaults rather than
// refusing to boot over a bad environment variable.
func (c *Config) Validate() []error {
	var warnings []error
	warn := func(format string, args ...any) {
		err := fmt.Errorf(format, args...)
		warnings = append(warnings, err)
		log.Warn("config validation", "error", err)
	}

	def := Default()

	if c.Port < 1 || c.Port > 65535 {
		warn("port %d out of range [1,65535], using default %d", c.Port, def.Port)
		c.Port = def.Port
	}

	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		warn("confidence_threshold %v out of range [0,1], using default %v", c.ConfidenceThreshold, def.ConfidenceThreshold)
		c.ConfidenceThreshold = def.ConfidenceThreshold
	}

	if c.StabilityWindow < 1 || c.StabilityWindow > 1000 {
		warn("stability_window %d out of range [1,1000], using default %d", c.StabilityWindow, def.StabilityWindow)
		c.StabilityWindow = def.StabilityWindow
	}

	if c.SentenceTimeoutSec <= 0 {
		warn("sentence_timeout %v must be positive, using default %v", c.SentenceTimeoutSec, def.SentenceTimeoutSec)
		c.SentenceTimeoutSec = def.SentenceTimeoutSec
	}

	if c.RateLimitFrames < 1 {
		warn("rate_limit_frames %d must be positive, using default %d", c.RateLimitFrames, def.RateLimitFrames)
		c.RateLimitFrames = def.RateLimitFrames
	}

	if c.RateLimitWindowS <= 0 {
		warn("rate_limit_window_s %v must be positive, using default %v", c.RateLimitWindowS, def.RateLimitWindowS)
		c.RateLimitWindowS = def.RateLimitWindowS
	}

	if c.MaxFramePayload < 1 {
		warn("max_frame_payload %d must be positive, using default %d", c.MaxFramePayload, def.MaxFramePayload)
		c.MaxFramePayload = def.MaxFramePayload
	}

	if c.SequenceLength < 1 || c.SequenceLength > 10000 {
		warn("sequence_length %d out of range [1,10000], using default %d", c.SequenceLength, def.SequenceLength)
		c.SequenceLength = def.SequenceLength
	}

	if len(c.Actions) == 0 {
		warn("actions list is empty, using default label set")
		c.Actions = def.Actions
	}

	if c.DetectionConfidence < 0 || c.DetectionConfidence > 1 {
		warn("detection_confidence %v out of range [0,1], using default %v", c.DetectionConfidence, def.DetectionConfidence)
		c.DetectionConfidence = def.DetectionConfidence
	}

	if c.TrackingConfidence < 0 || c.TrackingConfidence > 1 {
		warn("tracking_confidence %v out of range [0,1], using default %v", c.TrackingConfidence, def.TrackingConfidence)
		c.TrackingConfidence = def.TrackingConfidence
	}

	if c.InferenceWarnThresholdMs <= 0 {
		warn("inference_warn_threshold_ms %v must be positive, using default %v", c.InferenceWarnThresholdMs, def.InferenceWarnThresholdMs)
		c.InferenceWarnThresholdMs = def.InferenceWarnThresholdMs
	}

	if c.InferenceWorkers < 1 || c.InferenceWorkers > 64 {
		warn("inference_workers %d out of range [1,64], using default %d", c.InferenceWorkers, def.InferenceWorkers)
		c.InferenceWorkers = def.InferenceWorkers
	}

	if c.LogMaxSizeMB < 1 {
		warn("log_max_size_mb %d must be positive, using default %d", c.LogMaxSizeMB, def.LogMaxSizeMB)
		c.LogMaxSizeMB = def.LogMaxSizeMB
	}

	if c.LogMaxBackups < 0 {
		warn("log_max_backups %d must not be negative, using default %d", c.LogMaxBackups, def.LogMaxBackups)
		c.LogMaxBackups = def.LogMaxBackups
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		warn("log_level %q is not valid (use debug, info, warn, error), using default %q", c.LogLevel, def.LogLevel)
		c.LogLevel = def.LogLevel
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		warn("log_format %q is not valid (use text or json), using default %q", c.LogFormat, def.LogFormat)
		c.LogFormat = def.LogFormat
	}

	if len(c.CORSOrigins) == 0 {
		warn("cors_origins is empty, using default %v", def.CORSOrigins)
		c.CORSOrigins = def.CORSOrigins
	}

	return warnings
}
