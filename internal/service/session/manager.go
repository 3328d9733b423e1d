package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/wrenlabs/concierge/backend/internal/model/conversation"
	"github.com/wrenlabs/concierge/backend/internal/store"
)

const keyPrefix = "session:"

const (
	commitAttempts = 3
	retryBaseDelay = 100 * time.Millisecond
)

// ErrNotPersisted reports that a commit exhausted its retries. The in-memory
// copy is kept authoritative for the rest of the process lifetime, so the
// turn's response is still safe to deliver.
var ErrNotPersisted = errors.New("session not persisted")

// Manager owns per-session conversational state. All reads and writes of
// session blobs go through it, and it enforces the single-writer-per-session
// discipline via Acquire/Release.
type Manager struct {
	store store.Store
	ttl   time.Duration

	mu    sync.Mutex
	locks map[string]*semaphore.Weighted

	fbMu     sync.RWMutex
	fallback map[string]*conversation.Session
}

// NewManager builds a manager over the given store. ttl bounds how long
// committed blobs live; ttl <= 0 disables expiry.
func NewManager(st store.Store, ttl time.Duration) *Manager {
	return &Manager{
		store:    st,
		ttl:      ttl,
		locks:    make(map[string]*semaphore.Weighted),
		fallback: make(map[string]*conversation.Session),
	}
}

// Acquire takes the session's turn lock. Waiters queue in arrival order, so a
// second turn for an in-flight session runs only after the first commits.
// Distinct sessions never contend.
func (m *Manager) Acquire(ctx context.Context, sessionID string) error {
	if err := m.lockFor(sessionID).Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire session lock: %w", err)
	}
	return nil
}

// Release frees the session's turn lock.
func (m *Manager) Release(sessionID string) {
	m.lockFor(sessionID).Release(1)
}

func (m *Manager) lockFor(sessionID string) *semaphore.Weighted {
	m.mu.Lock()
	defer m.mu.Unlock()
	sem, ok := m.locks[sessionID]
	if !ok {
		sem = semaphore.NewWeighted(1)
		m.locks[sessionID] = sem
	}
	return sem
}

// Load returns an independent copy of the session state. A failed earlier
// commit makes the in-memory copy authoritative, so it is consulted before
// the store. Absent keys yield a fresh session; corrupt blobs (bad JSON or an
// unknown schema version) are treated as absent with a warning, never as a
// fatal error. The only returned error is caller-context cancellation.
//
// Load itself takes no lock; callers serializing writes hold Acquire around
// the load/commit pair, and read-only callers may load concurrently.
func (m *Manager) Load(ctx context.Context, sessionID string) (*conversation.Session, error) {
	if sess := m.fallbackCopy(sessionID); sess != nil {
		return sess, nil
	}

	data, err := m.getWithRetry(ctx, sessionID)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		return conversation.New(sessionID), nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		// The store stayed unreachable (or misbehaved). The turn must not
		// block on it; continuity is restored by the commit fallback.
		log.Warn().Err(err).Str("session", sessionID).Msg("session load failed, starting fresh")
		return conversation.New(sessionID), nil
	}

	sess := &conversation.Session{}
	if err := json.Unmarshal(data, sess); err != nil {
		log.Warn().Err(err).Str("session", sessionID).Msg("corrupt session blob, starting fresh")
		return conversation.New(sessionID), nil
	}
	if sess.SchemaVersion != conversation.CurrentSchemaVersion {
		log.Warn().Int("version", sess.SchemaVersion).Str("session", sessionID).
			Msg("unknown session schema version, starting fresh")
		return conversation.New(sessionID), nil
	}
	if sess.ID == "" {
		sess.ID = sessionID
	}
	return sess, nil
}

// Snapshot is the read path for callers that never commit, such as history
// reads. It takes no lock and shares Load's degraded-store behavior.
func (m *Manager) Snapshot(ctx context.Context, sessionID string) (*conversation.Session, error) {
	return m.Load(ctx, sessionID)
}

// Commit serializes and writes the session back. Transient store failures are
// retried with bounded backoff; if every attempt fails the session is kept in
// memory as the authoritative copy and ErrNotPersisted is returned so callers
// can flag the response while still delivering it.
func (m *Manager) Commit(ctx context.Context, sessionID string, sess *conversation.Session) error {
	sess.SchemaVersion = conversation.CurrentSchemaVersion
	sess.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= commitAttempts; attempt++ {
		lastErr = m.store.Set(ctx, keyPrefix+sessionID, data, m.ttl)
		if lastErr == nil {
			m.clearFallback(sessionID)
			return nil
		}
		if !errors.Is(lastErr, store.ErrUnavailable) {
			break
		}
		if attempt < commitAttempts {
			select {
			case <-time.After(time.Duration(attempt) * retryBaseDelay):
			case <-ctx.Done():
				lastErr = ctx.Err()
			}
			if ctx.Err() != nil {
				break
			}
		}
	}

	m.setFallback(sessionID, sess)
	log.Warn().Err(lastErr).Str("session", sessionID).
		Msg("commit failed, keeping in-memory session state authoritative")
	return fmt.Errorf("%w: %v", ErrNotPersisted, lastErr)
}

// Reset drops all state for the session, in memory and in the store.
func (m *Manager) Reset(ctx context.Context, sessionID string) error {
	m.clearFallback(sessionID)
	if err := m.store.Delete(ctx, keyPrefix+sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (m *Manager) getWithRetry(ctx context.Context, sessionID string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= commitAttempts; attempt++ {
		data, err := m.store.Get(ctx, keyPrefix+sessionID)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !errors.Is(err, store.ErrUnavailable) {
			return nil, err
		}
		if attempt < commitAttempts {
			select {
			case <-time.After(time.Duration(attempt) * retryBaseDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

func (m *Manager) fallbackCopy(sessionID string) *conversation.Session {
	m.fbMu.RLock()
	defer m.fbMu.RUnlock()
	if sess, ok := m.fallback[sessionID]; ok {
		return sess.Clone()
	}
	return nil
}

func (m *Manager) setFallback(sessionID string, sess *conversation.Session) {
	m.fbMu.Lock()
	m.fallback[sessionID] = sess.Clone()
	m.fbMu.Unlock()
}

func (m *Manager) clearFallback(sessionID string) {
	m.fbMu.Lock()
	delete(m.fallback, sessionID)
	m.fbMu.Unlock()
}
