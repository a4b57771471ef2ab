package config

import (
	"sync"

	"voxstream/internal/traversal"
)

// StreamSettings holds the streaming knobs that may change while running.
type StreamSettings struct {
	mu                      sync.RWMutex
	maximumScreenSpaceError float64
	maxRequestsPerFrame     int
	maxRetries              int
}

var globalStreamSettings = newStreamSettings()

func newStreamSettings() *StreamSettings {
	return &StreamSettings{
		maximumScreenSpaceError: traversal.DefaultTuning.MaximumScreenSpaceError,
		maxRequestsPerFrame:     traversal.DefaultTuning.MaxRequestsPerFrame,
		maxRetries:              traversal.DefaultTuning.MaxRetries,
	}
}

// GetMaximumScreenSpaceError returns the refinement threshold in pixels
func GetMaximumScreenSpaceError() float64 {
	globalStreamSettings.mu.RLock()
	defer globalStreamSettings.mu.RUnlock()
	return globalStreamSettings.maximumScreenSpaceError
}

// SetMaximumScreenSpaceError sets the refinement threshold in pixels
func SetMaximumScreenSpaceError(sse float64) {
	globalStreamSettings.mu.Lock()
	defer globalStreamSettings.mu.Unlock()

	if sse < 0.5 {
		sse = 0.5
	}
	if sse > 256 {
		sse = 256
	}

	globalStreamSettings.maximumScreenSpaceError = sse
}

// GetMaxRequestsPerFrame returns how many tiles may be requested per frame
func GetMaxRequestsPerFrame() int {
	globalStreamSettings.mu.RLock()
	defer globalStreamSettings.mu.RUnlock()
	return globalStreamSettings.maxRequestsPerFrame
}

// SetMaxRequestsPerFrame sets how many tiles may be requested per frame
func SetMaxRequestsPerFrame(n int) {
	globalStreamSettings.mu.Lock()
	defer globalStreamSettings.mu.Unlock()

	if n < 1 {
		n = 1
	}
	if n > 1024 {
		n = 1024
	}

	globalStreamSettings.maxRequestsPerFrame = n
}

// GetMaxRetries returns how often a failed tile is requested again
func GetMaxRetries() int {
	globalStreamSettings.mu.RLock()
	defer globalStreamSettings.mu.RUnlock()
	return globalStreamSettings.maxRetries
}

// SetMaxRetries sets how often a failed tile is requested again
func SetMaxRetries(n int) {
	globalStreamSettings.mu.Lock()
	defer globalStreamSettings.mu.Unlock()

	if n < 0 {
		n = 0
	}
	if n > 16 {
		n = 16
	}

	globalStreamSettings.maxRetries = n
}

// Tuning returns the current settings in the form the traversal takes.
func Tuning() traversal.Tuning {
	globalStreamSettings.mu.RLock()
	defer globalStreamSettings.mu.RUnlock()

	retries := globalStreamSettings.maxRetries
	if retries == 0 {
		retries = -1
	}
	return traversal.Tuning{
		MaximumScreenSpaceError: globalStreamSettings.maximumScreenSpaceError,
		MaxRequestsPerFrame:     globalStreamSettings.maxRequestsPerFrame,
		MaxRetries:              retries,
	}
}

// ResetStreamSettings restores the defaults.
func ResetStreamSettings() {
	fresh := newStreamSettings()

	globalStreamSettings.mu.Lock()
	defer globalStreamSettings.mu.Unlock()
	globalStreamSettings.maximumScreenSpaceError = fresh.maximumScreenSpaceError
	globalStreamSettings.maxRequestsPerFrame = fresh.maxRequestsPerFrame
	globalStreamSettings.maxRetries = fresh.maxRetries
}
