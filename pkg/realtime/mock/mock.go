// Package mock provides in-memory test doubles for the realtime interfaces:
// a scripted credential provider, a provider that hands out controllable
// sessions, and the sessions themselves. Tests drive inbound traffic with
// [Session.Emit] and inspect outbound traffic via the recorded calls.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/godt333/voicelink/pkg/realtime"
)

// Compile-time interface assertions.
var (
	_ realtime.CredentialProvider = (*CredentialProvider)(nil)
	_ realtime.Provider           = (*Provider)(nil)
	_ realtime.SessionHandle      = (*Session)(nil)
)

// CredentialProvider returns canned credentials and counts fetches.
type CredentialProvider struct {
	// Creds is returned by every successful Fetch.
	Creds realtime.Credentials

	// Err, when non-nil, makes Fetch fail.
	Err error

	mu      sync.Mutex
	fetches int
}

// Fetch returns the canned credentials.
func (p *CredentialProvider) Fetch(context.Context) (realtime.Credentials, error) {
	p.mu.Lock()
	p.fetches++
	p.mu.Unlock()

	if p.Err != nil {
		return realtime.Credentials{}, p.Err
	}
	return p.Creds, nil
}

// Fetches returns how many times Fetch has been called.
func (p *CredentialProvider) Fetches() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetches
}

// Provider hands out a fresh [Session] per Connect call.
type Provider struct {
	// ConnectErr, when non-nil, makes Connect fail.
	ConnectErr error

	mu       sync.Mutex
	sessions []*Session
}

// Connect records the call and returns a new controllable session.
func (p *Provider) Connect(_ context.Context, creds realtime.Credentials, cfg realtime.TurnConfig) (realtime.SessionHandle, error) {
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}

	s := &Session{
		Creds:  creds,
		events: make(chan realtime.InboundEvent, 64),
	}
	s.turnConfigs = append(s.turnConfigs, cfg)

	p.mu.Lock()
	p.sessions = append(p.sessions, s)
	p.mu.Unlock()
	return s, nil
}

// Sessions returns all sessions handed out so far, oldest first.
func (p *Provider) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Session, len(p.sessions))
	copy(out, p.sessions)
	return out
}

// Last returns the most recently created session, or nil.
func (p *Provider) Last() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sessions) == 0 {
		return nil
	}
	return p.sessions[len(p.sessions)-1]
}

// Session is a scripted realtime.SessionHandle.
type Session struct {
	// Creds are the credentials the session was opened with.
	Creds realtime.Credentials

	// SendErr, when non-nil, makes SendAudio fail.
	SendErr error

	mu          sync.Mutex
	events      chan realtime.InboundEvent
	sentAudio   [][]byte
	turnConfigs []realtime.TurnConfig
	commits     int
	closed      bool
	errVal      error
	closeOnce   sync.Once
}

// Emit delivers an inbound event to the session's consumer.
func (s *Session) Emit(e realtime.InboundEvent) {
	s.events <- e
}

// FailTransport simulates a transport-level failure: the error is recorded
// and the event stream ends.
func (s *Session) FailTransport(err error) {
	s.mu.Lock()
	if s.errVal == nil {
		s.errVal = err
	}
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.events) })
}

// SendAudio records the frame.
func (s *Session) SendAudio(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("mock: session closed")
	}
	if s.SendErr != nil {
		return s.SendErr
	}
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	s.sentAudio = append(s.sentAudio, cp)
	return nil
}

// UpdateTurnConfig records the config.
func (s *Session) UpdateTurnConfig(cfg realtime.TurnConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turnConfigs = append(s.turnConfigs, cfg)
	return nil
}

// CommitInput counts the commit.
func (s *Session) CommitInput() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits++
	return nil
}

// Events returns the scripted event stream.
func (s *Session) Events() <-chan realtime.InboundEvent { return s.events }

// Err returns the simulated transport error, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Close ends the event stream. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.events) })
	return nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// SentAudio returns all frames recorded by SendAudio.
func (s *Session) SentAudio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sentAudio))
	copy(out, s.sentAudio)
	return out
}

// TurnConfigs returns every config applied, including the one from Connect.
func (s *Session) TurnConfigs() []realtime.TurnConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]realtime.TurnConfig, len(s.turnConfigs))
	copy(out, s.turnConfigs)
	return out
}

// Commits returns how many times CommitInput has been called.
func (s *Session) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}
