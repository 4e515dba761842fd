package credentials

import (
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ErrNoCredential indicates no valid provider API key is configured.
var ErrNoCredential = errors.New("credentials: no api key configured")

// Gate is the precondition check in front of every provider call. All
// capture and chat functionality is blocked while no credential is present.
type Gate interface {
	// HasCredential reports whether a usable API key is configured.
	HasCredential() bool
	// APIKey returns the current key or ErrNoCredential.
	APIKey() (string, error)
	// SetCredential installs a replacement key, re-opening the gate. This is
	// the out-of-band selection flow surfaced to the client.
	SetCredential(key string)
	// MarkInvalid closes the gate after the provider rejected the key, so
	// the client is prompted to select a new one.
	MarkInvalid()
}

// Keyholder is the in-process Gate backed by configuration and the
// credential endpoint.
type Keyholder struct {
	mu     sync.RWMutex
	apiKey string
	logger *zap.Logger
}

// NewKeyholder seeds the gate with the configured key, which may be empty.
func NewKeyholder(seedKey string, logger *zap.Logger) *Keyholder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Keyholder{
		apiKey: strings.TrimSpace(seedKey),
		logger: logger,
	}
}

func (k *Keyholder) HasCredential() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.apiKey != ""
}

func (k *Keyholder) APIKey() (string, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.apiKey == "" {
		return "", ErrNoCredential
	}
	return k.apiKey, nil
}

func (k *Keyholder) SetCredential(key string) {
	trimmed := strings.TrimSpace(key)
	k.mu.Lock()
	k.apiKey = trimmed
	k.mu.Unlock()
	if trimmed != "" {
		k.logger.Info("provider credential installed")
	}
}

func (k *Keyholder) MarkInvalid() {
	k.mu.Lock()
	k.apiKey = ""
	k.mu.Unlock()
	k.logger.Warn("provider credential marked invalid")
}
