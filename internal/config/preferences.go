package config

import (
	"sync"
)

// Preferences is a typed key/value store the Settings are kept in
type Preferences interface {
	String(key string) string
	SetString(key, value string)
	Int(key string) int
	IntWithFallback(key string, fallback int) int
	SetInt(key string, value int)
	BoolWithFallback(key string, fallback bool) bool
	SetBool(key string, value bool)
	RemoveValue(key string)
}

// MemoryPreferences is an in-memory Preferences implementation
type MemoryPreferences struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewMemoryPreferences creates an empty store
func NewMemoryPreferences() *MemoryPreferences {
	return &MemoryPreferences{values: make(map[string]any)}
}

// String returns the string stored under key or ""
func (p *MemoryPreferences) String(key string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, _ := p.values[key].(string)
	return v
}

// SetString stores a string value
func (p *MemoryPreferences) SetString(key, value string) {
	p.set(key, value)
}

// Int returns the int stored under key or 0
func (p *MemoryPreferences) Int(key string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, _ := p.values[key].(int)
	return v
}

// IntWithFallback returns the int stored under key, or fallback if unset
func (p *MemoryPreferences) IntWithFallback(key string, fallback int) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.values[key].(int)
	if !ok {
		return fallback
	}
	return v
}

// SetInt stores an int value
func (p *MemoryPreferences) SetInt(key string, value int) {
	p.set(key, value)
}

// BoolWithFallback returns the bool stored under key, or fallback if unset
func (p *MemoryPreferences) BoolWithFallback(key string, fallback bool) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.values[key].(bool)
	if !ok {
		return fallback
	}
	return v
}

// SetBool stores a bool value
func (p *MemoryPreferences) SetBool(key string, value bool) {
	p.set(key, value)
}

// RemoveValue deletes key
func (p *MemoryPreferences) RemoveValue(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.values, key)
}

func (p *MemoryPreferences) set(key string, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[key] = value
}
