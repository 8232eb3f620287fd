// Package upload provides implementations of the segment upload sink: the
// external collaborator that turns raw segment bytes into a fetchable URL.
package upload

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrUnavailable is returned by a MockSink that has been armed to fail.
var ErrUnavailable = errors.New("upload sink unavailable")

// MockSink is the in-memory CDN stand-in. Uploads are kept in a map so tests
// can inspect what was stored, and the sink can be armed to fail a number of
// upcoming uploads to exercise the pending-segment path.
type MockSink struct {
	mu       sync.Mutex
	baseURL  string
	objects  map[string][]byte
	failNext int
}

// NewMockSink returns a sink that serves URLs under baseURL. An empty
// baseURL gets a generated mock CDN host.
func NewMockSink(baseURL string) *MockSink {
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://cdn-mock-%s.example.com", uuid.NewString()[:8])
	}
	return &MockSink{
		baseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string][]byte),
	}
}

// Upload stores the payload under key and returns its fetch URL.
func (s *MockSink) Upload(data []byte, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext > 0 {
		s.failNext--
		return "", ErrUnavailable
	}

	key = strings.TrimLeft(key, "/")
	s.objects[key] = bytes.Clone(data)
	return s.baseURL + "/" + key, nil
}

// FailNext arms the sink to fail the next n uploads.
func (s *MockSink) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

// Object returns the stored payload for key, if any.
func (s *MockSink) Object(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[strings.TrimLeft(key, "/")]
	return data, ok
}

// Count returns the number of stored objects.
func (s *MockSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
