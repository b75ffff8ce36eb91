// Package embedding turns text into fixed-length vectors through a remote service.
package embedding

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Dimensions is the vector length produced by the embedding deployments we target.
const Dimensions = 1536

// ErrMissingCredentials is returned when a client is built without an API key or endpoint.
var ErrMissingCredentials = errors.New("missing embedding credentials")

// Vector is a single embedding.
type Vector []float32

// Client is the interface all embedding backends must implement.
type Client interface {
	// Embed returns the embedding of text using the named deployment.
	Embed(ctx context.Context, text, deployment string) (Vector, error)
	// Name returns the backend identifier (e.g. "azure", "openai").
	Name() string
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, text, deployment string) (Vector, error)

func (f ClientFunc) Embed(ctx context.Context, text, deployment string) (Vector, error) {
	return f(ctx, text, deployment)
}

func (f ClientFunc) Name() string { return "func" }

// RequestFailedError is returned when the service rejects or fails a request.
// Callers may react to it by resubmitting smaller inputs.
type RequestFailedError struct {
	StatusCode int // 0 when no HTTP response was received
	Message    string
	Err        error
}

func (e *RequestFailedError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("embedding request failed (%d): %s", e.StatusCode, e.Message)
	}
	return "embedding request failed: " + e.Message
}

func (e *RequestFailedError) Unwrap() error { return e.Err }

// IsRequestFailed reports whether err carries a RequestFailedError.
func IsRequestFailed(err error) bool {
	var rf *RequestFailedError
	return errors.As(err, &rf)
}

// VectorBytes serializes v as the little-endian concatenation of its floats.
func VectorBytes(v Vector) []byte {
	out := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(f))
	}
	return out
}

// VectorFromBytes is the inverse of VectorBytes.
func VectorFromBytes(b []byte) (Vector, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector byte length %d is not a multiple of 4", len(b))
	}
	v := make(Vector, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
