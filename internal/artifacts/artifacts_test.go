package artifacts

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFetchBarePathReturnsAsIs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.onnx")
	if err := os.WriteFile(path, []byte("fake model bytes"), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	got, err := Fetch(context.Background(), path)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got != path {
		t.Fatalf("Fetch() = %q, want %q", got, path)
	}
}

func TestFetchFileSchemeReturnsAsIs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.onnx")
	os.WriteFile(path, []byte("x"), 0644)

	got, err := Fetch(context.Background(), "file://"+path)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got != path {
		t.Fatalf("Fetch() = %q, want %q", got, path)
	}
}

func TestFetchMissingLocalPathErrors(t *testing.T) {
	_, err := Fetch(context.Background(), "/does/not/exist/model.onnx")
	if err == nil {
		t.Fatal("expected error for missing local artifact")
	}
}

func TestFetchUnsupportedSchemeErrors(t *testing.T) {
	_, err := Fetch(context.Background(), "ftp://host/model.onnx")
	if err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

func TestBucketAndKeySplitsCorrectly(t *testing.T) {
	bucket, key, err := bucketAndKey("my-bucket/path/to/model.onnx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bucket != "my-bucket" || key != "path/to/model.onnx" {
		t.Fatalf("got bucket=%q key=%q", bucket, key)
	}
}

func TestBucketAndKeyRejectsMissingKey(t *testing.T) {
	if _, _, err := bucketAndKey("just-a-bucket"); err == nil {
		t.Fatal("expected error when no key is present")
	}
}
