package config

import (
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds every tunable for the sign-detection service. All fields are
// environment-driven (no on-disk config file — see DESIGN.md). Validate
// clamps malformed or out-of-range values back to defaults rather than
// failing startup.
type Config struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	CORSOrigins []string `mapstructure:"cors_origins"`

	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	StabilityWindow     int     `mapstructure:"stability_window"`
	SentenceTimeoutSec  float64 `mapstructure:"sentence_timeout"`

	APIKey string `mapstructure:"api_key"`

	RateLimitFrames  int     `mapstructure:"rate_limit_frames"`
	RateLimitWindowS float64 `mapstructure:"rate_limit_window_s"`
	MaxFramePayload  int     `mapstructure:"max_frame_payload"`

	// Sequence window length (W) and action label set (N) make up the
	// model's fixed I/O contract.
	SequenceLength int      `mapstructure:"sequence_length"`
	Actions        []string `mapstructure:"actions"`

	// ModelPath is resolved by internal/artifacts: a bare/file:// path, or an
	// s3:// / gs:// URI staged to a temp file before the runtime loads it.
	ModelPath      string `mapstructure:"model_path"`
	OnnxRuntimeLib string `mapstructure:"onnx_runtime_lib"`

	DetectionConfidence float64 `mapstructure:"detection_confidence"`
	TrackingConfidence  float64 `mapstructure:"tracking_confidence"`

	InferenceWarnThresholdMs float64 `mapstructure:"inference_warn_threshold_ms"`
	InferenceWorkers         int     `mapstructure:"inference_workers"`

	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
}

// Default returns the service's safe-fallback configuration.
func Default() *Config {
	return &Config{
		Host: "0.0.0.0",
		Port: 8001,

		CORSOrigins: []string{"*"},

		ConfidenceThreshold: 0.7,
		StabilityWindow:     8,
		SentenceTimeoutSec:  2.0,

		APIKey: "",

		RateLimitFrames:  60,
		RateLimitWindowS: 10.0,
		MaxFramePayload:  5_000_000,

		SequenceLength: 30,
		Actions: []string{
			"hello", "thank_you", "please", "sorry", "yes",
			"no", "help", "name", "good", "bad",
		},

		ModelPath:      "./models/sign_lstm.onnx",
		OnnxRuntimeLib: "",

		DetectionConfidence: 0.5,
		TrackingConfidence:  0.5,

		InferenceWarnThresholdMs: 200,
		InferenceWorkers:         4,

		LogLevel:      "info",
		LogFormat:     "text",
		LogMaxSizeMB:  50,
		LogMaxBackups: 3,
	}
}

// Load builds a Config from environment variables, overlaying Default().
// Malformed values never fail startup: Validate clamps them back to
// defaults and returns the warnings it logged.
func Load() (*Config, []error) {
	cfg := Default()

	v := viper.New()
	v.AutomaticEnv()

	setString(v, "HOST", &cfg.Host)
	setInt(v, "PORT", &cfg.Port)
	setCSV(v, "CORS_ORIGINS", &cfg.CORSOrigins)
	setFloat(v, "CONFIDENCE_THRESHOLD", &cfg.ConfidenceThreshold)
	setInt(v, "STABILITY_WINDOW", &cfg.StabilityWindow)
	setFloat(v, "SENTENCE_TIMEOUT", &cfg.SentenceTimeoutSec)
	setString(v, "API_KEY", &cfg.APIKey)
	setInt(v, "RATE_LIMIT_FRAMES", &cfg.RateLimitFrames)
	setFloat(v, "RATE_LIMIT_WINDOW_S", &cfg.RateLimitWindowS)
	setInt(v, "MAX_FRAME_PAYLOAD", &cfg.MaxFramePayload)
	setInt(v, "SEQUENCE_LENGTH", &cfg.SequenceLength)
	setCSV(v, "ACTIONS", &cfg.Actions)
	setString(v, "MODEL_PATH", &cfg.ModelPath)
	setString(v, "ONNX_RUNTIME_LIB", &cfg.OnnxRuntimeLib)
	setFloat(v, "DETECTION_CONFIDENCE", &cfg.DetectionConfidence)
	setFloat(v, "TRACKING_CONFIDENCE", &cfg.TrackingConfidence)
	setFloat(v, "INFERENCE_WARN_THRESHOLD_MS", &cfg.InferenceWarnThresholdMs)
	setInt(v, "INFERENCE_WORKERS", &cfg.InferenceWorkers)
	setString(v, "LOG_LEVEL", &cfg.LogLevel)
	setString(v, "LOG_FORMAT", &cfg.LogFormat)
	setString(v, "LOG_FILE", &cfg.LogFile)
	setInt(v, "LOG_MAX_SIZE_MB", &cfg.LogMaxSizeMB)
	setInt(v, "LOG_MAX_BACKUPS", &cfg.LogMaxBackups)

	warnings := cfg.Validate()

	return cfg, warnings
}

func setString(v *viper.Viper, key string, dst *string) {
	if raw := v.GetString(key); raw != "" {
		*dst = raw
	}
}

func setCSV(v *viper.Viper, key string, dst *[]string) {
	raw := v.GetString(key)
	if raw == "" {
		return
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}

// setInt leaves dst untouched when the env var is unset. An unparsable value
// is replaced by invalidIntSentinel (nothing is reported here), which every
// int range check in Validate rejects, so Validate reports it and restores
// the default.
func setInt(v *viper.Viper, key string, dst *int) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*dst = invalidIntSentinel
		return
	}
	*dst = n
}

func setFloat(v *viper.Viper, key string, dst *float64) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*dst = invalidFloatSentinel
		return
	}
	*dst = f
}

// invalidIntSentinel/invalidFloatSentinel are out-of-any-valid-range values
// used to force Validate's clamp path when an env var fails to parse, so a
// single validation pass handles both "out of range" and "not a number".
const (
	invalidIntSentinel    = -1 << 31
	invalidFloatSentinel  = -1e18
)
