// Package session holds the current user identity and bearer token. The
// authoritative credential storage lives outside this module; consumers only
// need the current values and whether a session exists at all.
package session

import "sync"

// Credentials identifies the signed-in user against the remote service.
type Credentials struct {
	UserID int64
	Token  string
}

// Store yields the current session, if any. The reconciliation engine treats
// an absent session as "do nothing", not as an error.
type Store interface {
	Credentials() (Credentials, bool)
}

// Static is a fixed session, typically built from configuration at startup.
type Static struct {
	creds Credentials
}

func NewStatic(userID int64, token string) *Static {
	return &Static{creds: Credentials{UserID: userID, Token: token}}
}

func (s *Static) Credentials() (Credentials, bool) {
	if s == nil || s.creds.Token == "" {
		return Credentials{}, false
	}
	return s.creds, true
}

// Memory is a settable store for login/logout flows and tests.
type Memory struct {
	mu    sync.RWMutex
	creds Credentials
	ok    bool
}

func (m *Memory) Set(userID int64, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = Credentials{UserID: userID, Token: token}
	m.ok = token != ""
}

func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = Credentials{}
	m.ok = false
}

func (m *Memory) Credentials() (Credentials, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creds, m.ok
}
