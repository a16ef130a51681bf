package client

import "sync"

// TokenSource supplies the bearer credential attached to outbound calls.
// Implementations must return the latest token at call time; an empty string
// means the caller is anonymous and the Authorization header is omitted.
type TokenSource interface {
	CurrentToken() string
	// OnChange registers a listener invoked whenever the token is replaced,
	// including replacement with the empty string on sign-out.
	OnChange(func(token string))
}

// StaticToken is a TokenSource for a credential that never rotates. Useful
// for tests and one-shot CLI invocations.
type StaticToken string

func (s StaticToken) CurrentToken() string   { return string(s) }
func (StaticToken) OnChange(func(string)) {}

// MemoryTokenSource holds a token in memory and notifies listeners on every
// change. The CLI updates it after login and clears it on logout.
type MemoryTokenSource struct {
	mu        sync.Mutex
	token     string
	listeners []func(string)
}

func NewMemoryTokenSource() *MemoryTokenSource {
	return &MemoryTokenSource{}
}

func (m *MemoryTokenSource) CurrentToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Set replaces the stored token and fires the change listeners.
func (m *MemoryTokenSource) Set(token string) {
	m.mu.Lock()
	m.token = token
	listeners := make([]func(string), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(token)
	}
}

// Clear drops the credential, returning the source to anonymous.
func (m *MemoryTokenSource) Clear() {
	m.Set("")
}

func (m *MemoryTokenSource) OnChange(fn func(string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}
