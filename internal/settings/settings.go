// Package settings holds the mutable delivery configuration: the shared bot
// token and each persona's destination. Nothing here is written to disk.
package settings

import (
	"sync"

	"agent_office/internal/domain"
)

const (
	maskPrefix  = "••••"
	maskVisible = 6
)

// Mask hides all but the last six characters of a token.
func Mask(token string) string {
	if token == "" {
		return ""
	}
	r := []rune(token)
	if len(r) > maskVisible {
		r = r[len(r)-maskVisible:]
	}
	return maskPrefix + string(r)
}

type Settings struct {
	mu      sync.RWMutex
	token   string
	configs map[string]domain.DeliveryConfig
}

func New() *Settings {
	return &Settings{configs: make(map[string]domain.DeliveryConfig)}
}

func (s *Settings) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SetToken replaces the token (empty clears it) and returns the masked form.
func (s *Settings) SetToken(token string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return Mask(token)
}

func (s *Settings) MaskedToken() string {
	return Mask(s.Token())
}

func (s *Settings) DeliveryConfig(personaID string) domain.DeliveryConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.configs[personaID]
}

// UpdateDeliveryConfig merges patch into the persona's config and returns the result.
func (s *Settings) UpdateDeliveryConfig(personaID string, patch domain.DeliveryConfigPatch) domain.DeliveryConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.configs[personaID].Apply(patch)
	s.configs[personaID] = next
	return next
}

// Resolve returns the token and the persona's destination in one consistent read.
func (s *Settings) Resolve(personaID string) (token string, destination string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.configs[personaID].ChatID
}
