package app

import (
	"errors"
	"sync"
)

// ErrNotInitialized is returned by Default before Init or after Teardown.
var ErrNotInitialized = errors.New("app: not initialized")

var (
	defaultMu  sync.RWMutex
	defaultApp *App
)

// Init installs a built App as the process-wide instance. It must be called
// exactly once before Default; a second call is a programming error and
// leaves the existing instance untouched.
func Init(a *App) error {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultApp != nil {
		return errors.New("app: already initialized")
	}
	defaultApp = a
	return nil
}

// Default returns the process-wide App installed by Init.
func Default() (*App, error) {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	if defaultApp == nil {
		return nil, ErrNotInitialized
	}
	return defaultApp, nil
}

// Teardown stops and forgets the process-wide App.
func Teardown() error {
	defaultMu.Lock()
	a := defaultApp
	defaultApp = nil
	defaultMu.Unlock()
	if a == nil {
		return nil
	}
	return a.Stop()
}
