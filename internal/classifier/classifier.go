// Package classifier wraps the pretrained sequence model behind a pure
// predict(sequence) -> (probabilities, latency) contract. It is the only
// package allowed to touch the tensor runtime (github.com/yalue/onnxruntime_go).
package classifier

import (
	"fmt"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/signbridge/sign-inference/internal/logging"
)

var log = logging.L("classifier")

var envOnce sync.Once
var envErr error

// Model is the narrow interface the rest of the pipeline depends on, so
// tests can substitute a fake without touching ONNX Runtime.
type Model interface {
	// Predict runs one (W, 1662) sequence through the model and returns the
	// N-length probability distribution and the wall-clock inference time.
	Predict(sequence [][]float32) ([]float32, time.Duration, error)
}

// Classifier owns one ONNX Runtime session loaded from a model artifact at
// startup. Model weights are read-only after load and safe to share across
// connections; the input/output tensors are not, so Predict serializes
// access with a mutex.
type Classifier struct {
	sequenceLength int
	numActions     int

	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// Load initializes the shared ONNX Runtime environment (once per process)
// and creates a session for modelPath. sharedLibPath may be empty to use
// the runtime's platform default search. A load failure is returned to the
// caller, never panics: a missing or invalid artifact must not crash the
// server, only disable inference.
func Load(modelPath, sharedLibPath string, sequenceLength, numActions int) (*Classifier, error) {
	envOnce.Do(func() {
		if sharedLibPath != "" {
			ort.SetSharedLibraryPath(sharedLibPath)
		}
		envErr = ort.InitializeEnvironment()
	})
	if envErr != nil {
		return nil, fmt.Errorf("initialize onnx runtime: %w", envErr)
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(sequenceLength), int64(buffer1662)))
	if err != nil {
		return nil, fmt.Errorf("allocate input tensor: %w", err)
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(numActions)))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}

	inputInfo, outputInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("inspect model %s: %w", modelPath, err)
	}
	if len(inputInfo) == 0 || len(outputInfo) == 0 {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("model %s exposes no input/output", modelPath)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{inputInfo[0].Name}, []string{outputInfo[0].Name},
		[]ort.Value{input}, []ort.Value{output},
		nil,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create session for %s: %w", modelPath, err)
	}

	log.Info("classifier model loaded", "path", modelPath, "sequenceLength", sequenceLength, "actions", numActions)

	return &Classifier{
		sequenceLength: sequenceLength,
		numActions:     numActions,
		session:        session,
		input:          input,
		output:         output,
	}, nil
}

const buffer1662 = 1662

// validateSequence checks sequence shape before it ever touches the tensor
// runtime, so the check is unit-testable without a loaded ONNX session.
func validateSequence(sequence [][]float32, wantLen int) error {
	if len(sequence) != wantLen {
		return fmt.Errorf("classifier: expected sequence length %d, got %d", wantLen, len(sequence))
	}
	for i, vec := range sequence {
		if len(vec) != buffer1662 {
			return fmt.Errorf("classifier: frame %d has length %d, want %d", i, len(vec), buffer1662)
		}
	}
	return nil
}

// Predict runs sequence (length sequenceLength, each of length 1662)
// through the model, returning the N-length softmax distribution and the
// wall-clock inference time.
func (c *Classifier) Predict(sequence [][]float32) ([]float32, time.Duration, error) {
	if err := validateSequence(sequence, c.sequenceLength); err != nil {
		return nil, 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()

	data := c.input.GetData()
	for i, vec := range sequence {
		copy(data[i*buffer1662:(i+1)*buffer1662], vec)
	}

	if err := c.session.Run(); err != nil {
		return nil, time.Since(start), fmt.Errorf("classifier: inference failed: %w", err)
	}

	out := c.output.GetData()
	probs := make([]float32, len(out))
	copy(probs, out)

	return probs, time.Since(start), nil
}

// Close releases the session and tensors.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.Destroy()
	}
	if c.input != nil {
		c.input.Destroy()
	}
	if c.output != nil {
		c.output.Destroy()
	}
	return nil
}
