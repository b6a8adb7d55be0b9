package keypoints

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func TestProcessReturnsFullLengthVector(t *testing.T) {
	e := New(nil, Config{DetectionConfidence: 0.5, TrackingConfidence: 0.5})
	out := e.Process(encodeJPEG(t, 64, 64))
	if !out.Ok {
		t.Fatal("expected successful processing of a valid JPEG")
	}
	if len(out.Vector) != VectorLength {
		t.Fatalf("len(Vector) = %d, want %d", len(out.Vector), VectorLength)
	}
}

func TestProcessDropsCorruptData(t *testing.T) {
	e := New(nil, Config{})
	out := e.Process([]byte("not a jpeg"))
	if out.Ok {
		t.Fatal("expected Ok=false for corrupt JPEG bytes")
	}
}

func TestProcessDropsEmptyPayload(t *testing.T) {
	e := New(nil, Config{})
	out := e.Process(nil)
	if out.Ok {
		t.Fatal("expected Ok=false for empty payload")
	}
}

func TestAssertVectorPanicsOnWrongLength(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for wrong-length vector")
		}
	}()
	AssertVector(make([]float32, 10))
}

func TestHandsDetectedFalseWhenHandSlicesZero(t *testing.T) {
	vector := make([]float32, VectorLength)
	if handsDetected(vector) {
		t.Fatal("all-zero hand slices should report hands_detected=false")
	}
	vector[leftHandStart] = 0.1
	if !handsDetected(vector) {
		t.Fatal("non-zero left hand slice should report hands_detected=true")
	}
}

func TestDeterministicStubIsReproducible(t *testing.T) {
	frame := encodeJPEG(t, 32, 32)
	e1 := New(nil, Config{DetectionConfidence: 0.5})
	e2 := New(nil, Config{DetectionConfidence: 0.5})

	out1 := e1.Process(frame)
	out2 := e2.Process(frame)

	if !out1.Ok || !out2.Ok {
		t.Fatal("expected both processes to succeed")
	}
	for i := range out1.Vector {
		if out1.Vector[i] != out2.Vector[i] {
			t.Fatalf("stub output differs at index %d: %v vs %v", i, out1.Vector[i], out2.Vector[i])
		}
	}
}
