// Package artifacts resolves a model artifact URI — a local path, or an
// s3:// / gs:// object — to a local file path that onnxruntime_go can open.
// Remote schemes are staged to a temp file since the ONNX Runtime API
// requires a real filesystem path.
package artifacts

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/signbridge/sign-inference/internal/logging"
)

var log = logging.L("artifacts")

// Fetch resolves uri to a local file path. For file:// or bare paths, the
// path is returned as-is (no staging needed). For s3:// and gs:// URIs, the
// object is downloaded to a temp file and that path is returned.
func Fetch(ctx context.Context, uri string) (string, error) {
	scheme, rest, hasScheme := splitScheme(uri)
	if !hasScheme || scheme == "file" {
		path := rest
		if !hasScheme {
			path = uri
		}
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("artifacts: stat %s: %w", path, err)
		}
		return path, nil
	}

	switch scheme {
	case "s3":
		return fetchS3(ctx, rest)
	case "gs":
		return fetchGCS(ctx, rest)
	default:
		return "", fmt.Errorf("artifacts: unsupported scheme %q in %s", scheme, uri)
	}
}

func splitScheme(uri string) (scheme, rest string, ok bool) {
	idx := strings.Index(uri, "://")
	if idx < 0 {
		return "", uri, false
	}
	return uri[:idx], uri[idx+3:], true
}

// stageToTempFile copies r's contents to a new temp file and returns its
// path. Callers are responsible for cleanup once the consumer (ONNX
// Runtime) is done with the file.
func stageToTempFile(prefix string, r io.Reader) (string, error) {
	f, err := os.CreateTemp("", prefix+"-*.onnx")
	if err != nil {
		return "", fmt.Errorf("artifacts: create temp file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("artifacts: stage artifact: %w", err)
	}

	return f.Name(), nil
}

// bucketAndKey splits "bucket/key/with/slashes" into its two parts.
func bucketAndKey(rest string) (bucket, key string, err error) {
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("artifacts: expected bucket/key, got %q", rest)
	}
	return parts[0], parts[1], nil
}

// CleanupStaged removes a temp file created by Fetch for a remote scheme.
// A path whose directory is not os.TempDir is left alone; any file directly
// inside os.TempDir is removed, including a local artifact stored there.
func CleanupStaged(path string) {
	if path == "" {
		return
	}
	if dir := filepath.Dir(path); dir != os.TempDir() {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to remove staged artifact", "path", path, "error", err)
	}
}
