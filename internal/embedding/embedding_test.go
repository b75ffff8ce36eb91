package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
)

func TestVectorBytes_LittleEndian(t *testing.T) {
	b := VectorBytes(Vector{1.0})
	want := []byte{0x00, 0x00, 0x80, 0x3f}
	if string(b) != string(want) {
		t.Fatalf("expected % x, got % x", want, b)
	}
}

func TestVectorBytes_RoundTrip(t *testing.T) {
	v := Vector{0, -1.5, 3.25, float32(math.Inf(1))}
	got, err := VectorFromBytes(VectorBytes(v))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range v {
		if got[i] != v[i] {
			t.Errorf("index %d: expected %v, got %v", i, v[i], got[i])
		}
	}
	if len(VectorBytes(make(Vector, Dimensions))) != 4*Dimensions {
		t.Error("unexpected serialized length")
	}
}

func TestVectorFromBytes_BadLength(t *testing.T) {
	if _, err := VectorFromBytes([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for length not divisible by 4")
	}
}

func TestRequestFailedError(t *testing.T) {
	inner := errors.New("socket closed")
	err := fmt.Errorf("embed: %w", &RequestFailedError{StatusCode: 400, Message: "too long", Err: inner})

	if !IsRequestFailed(err) {
		t.Fatal("expected IsRequestFailed to see through wrapping")
	}
	if !errors.Is(err, inner) {
		t.Error("expected Unwrap to expose the cause")
	}
	if got := (&RequestFailedError{Message: "no answer"}).Error(); got != "embedding request failed: no answer" {
		t.Errorf("unexpected message %q", got)
	}
	if IsRequestFailed(errors.New("other")) {
		t.Error("plain error reported as request failure")
	}
}

func TestClientFunc(t *testing.T) {
	var c Client = ClientFunc(func(ctx context.Context, text, deployment string) (Vector, error) {
		return Vector{float32(len(text))}, nil
	})
	v, err := c.Embed(context.Background(), "abcd", "ada")
	if err != nil || v[0] != 4 {
		t.Fatalf("unexpected result %v, %v", v, err)
	}
	if c.Name() != "func" {
		t.Errorf("expected 'func', got %s", c.Name())
	}
}
