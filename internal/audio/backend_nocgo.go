//go:build nocgo
// +build nocgo

package audio

import "time"

// Stub for static analysis and builds without CGO.
func newBackend(time.Duration) (backend, error) {
	return nil, ErrNoDevice
}
