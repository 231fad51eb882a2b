// Package session owns authentication and working-session persistence for
// the terminal: online login with a locally cached credential fallback,
// per-tab session records that survive restarts, and the reference-data
// snapshot the terminal works from while offline.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pdcpos/posoffline/internal/common"
	"github.com/pdcpos/posoffline/internal/logging"
	"github.com/pdcpos/posoffline/internal/models"
	"github.com/pdcpos/posoffline/internal/remote"
	"github.com/pdcpos/posoffline/internal/repositories/credentials"
	"github.com/pdcpos/posoffline/internal/repositories/sessions"
	"github.com/pdcpos/posoffline/internal/retryx"
)

// DefaultSessionTTL bounds how long a session stays restorable without a
// heartbeat.
const DefaultSessionTTL = 12 * time.Hour

// NewTabID returns a fresh identifier for one tab/instance of the terminal.
// Each tab keeps its own session under the shared store.
func NewTabID() string {
	return uuid.NewString()
}

type Manager struct {
	db     *sql.DB
	client remote.Client
	exec   *retryx.Executor
	log    logging.Logger
	ttl    time.Duration
}

func NewManager(db *sql.DB, client remote.Client, exec *retryx.Executor, log logging.Logger, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Manager{
		db:     db,
		client: client,
		exec:   exec,
		log:    log.With("component", "session"),
		ttl:    ttl,
	}
}

func (m *Manager) sessRepo() sessions.Repository {
	return sessions.NewSQLiteRepository(m.db)
}

func (m *Manager) credRepo() credentials.Repository {
	return credentials.NewSQLiteRepository(m.db)
}

// Login authenticates and opens a session for tabID. The server is tried
// first; when it is unreachable the cached credential hash is verified
// instead, so a user who has logged in online before can keep working
// offline. A server-side rejection is final and never falls back.
func (m *Manager) Login(ctx context.Context, login string, secret []byte, tabID string) (*models.Session, error) {
	res, err := m.client.Login(ctx, login, secret)
	switch {
	case err == nil:
		if cerr := m.cacheCredential(ctx, res.UserID, login, secret); cerr != nil {
			// The login itself succeeded; a failed cache write only costs
			// the next offline login.
			m.log.Warn(ctx, "caching credential failed", "error", cerr)
		}
		return m.startSession(ctx, res.UserID, tabID)

	case errors.Is(err, common.ErrUnavailable):
		m.log.Info(ctx, "server unreachable, verifying credentials locally", "login", login)
		return m.loginOffline(ctx, login, secret, tabID)

	default:
		return nil, err
	}
}

func (m *Manager) loginOffline(ctx context.Context, login string, secret []byte, tabID string) (*models.Session, error) {
	cred, err := retryx.DoValue(ctx, m.exec, "session.load_credential",
		func(ctx context.Context) (*models.Credential, error) {
			return m.credRepo().GetByLogin(ctx, login)
		})
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("%w: no cached credentials for %q", common.ErrLocalDataNotAvailable, login)
		}
		return nil, err
	}

	ok, err := verifySecret(secret, cred.SecretHash)
	if err != nil {
		return nil, fmt.Errorf("verifying cached credential: %w", err)
	}
	if !ok {
		return nil, common.ErrUnauthorized
	}

	if needsRehash(cred.SecretHash) {
		if err := m.cacheCredential(ctx, cred.UserID, login, secret); err != nil {
			m.log.Warn(ctx, "credential rehash failed", "error", err)
		}
	}

	return m.startSession(ctx, cred.UserID, tabID)
}

func (m *Manager) cacheCredential(ctx context.Context, userID, login string, secret []byte) error {
	return m.exec.Do(ctx, "session.cache_credential", func(ctx context.Context) error {
		return m.credRepo().Put(ctx, &models.Credential{
			UserID:     userID,
			Login:      login,
			SecretHash: hashSecret(secret),
			Algorithm:  AlgorithmArgon2id,
			UpdatedAt:  time.Now(),
		})
	})
}

func (m *Manager) startSession(ctx context.Context, ownerID, tabID string) (*models.Session, error) {
	now := time.Now()
	exp := now.Add(m.ttl)
	s := &models.Session{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		TabID:       tabID,
		CreatedAt:   now,
		ExpiresAt:   &exp,
		HeartbeatAt: now,
	}

	err := m.exec.Do(ctx, "session.start", func(ctx context.Context) error {
		return m.sessRepo().Put(ctx, s)
	})
	if err != nil {
		return nil, err
	}

	m.log.Info(ctx, "session started", "key", s.Key())
	return s, nil
}

// Restore returns the live session for (ownerID, tabID). An expired session
// is deleted and reported as ErrNotFound so the caller re-authenticates.
func (m *Manager) Restore(ctx context.Context, ownerID, tabID string) (*models.Session, error) {
	s, err := retryx.DoValue(ctx, m.exec, "session.restore",
		func(ctx context.Context) (*models.Session, error) {
			return m.sessRepo().GetByTab(ctx, ownerID, tabID)
		})
	if err != nil {
		return nil, err
	}

	if s.Expired(time.Now()) {
		m.log.Info(ctx, "stored session expired, discarding", "key", s.Key())
		if derr := m.exec.Do(ctx, "session.drop_expired", func(ctx context.Context) error {
			return m.sessRepo().Delete(ctx, s.ID)
		}); derr != nil {
			m.log.Warn(ctx, "deleting expired session failed", "error", derr)
		}
		return nil, common.ErrNotFound
	}
	return s, nil
}

// Heartbeat marks the session alive and slides its expiry forward.
func (m *Manager) Heartbeat(ctx context.Context, s *models.Session) error {
	now := time.Now()
	exp := now.Add(m.ttl)

	err := m.exec.Do(ctx, "session.heartbeat", func(ctx context.Context) error {
		return m.sessRepo().Heartbeat(ctx, s.ID, now, &exp)
	})
	if err != nil {
		return err
	}
	s.HeartbeatAt = now
	s.ExpiresAt = &exp
	return nil
}

// Sessions lists every live tab session of one user.
func (m *Manager) Sessions(ctx context.Context, ownerID string) ([]*models.Session, error) {
	return retryx.DoValue(ctx, m.exec, "session.list",
		func(ctx context.Context) ([]*models.Session, error) {
			return m.sessRepo().ListByOwner(ctx, ownerID)
		})
}

// Logout removes the session record. Cached credentials and reference data
// stay: the user can log back in offline.
func (m *Manager) Logout(ctx context.Context, s *models.Session) error {
	err := m.exec.Do(ctx, "session.logout", func(ctx context.Context) error {
		return m.sessRepo().Delete(ctx, s.ID)
	})
	if err != nil {
		return err
	}
	m.log.Info(ctx, "session closed", "key", s.Key())
	return nil
}

// PurgeExpired drops every expired session, regardless of owner. Called on
// startup.
func (m *Manager) PurgeExpired(ctx context.Context) (int64, error) {
	return retryx.DoValue(ctx, m.exec, "session.purge_expired",
		func(ctx context.Context) (int64, error) {
			return m.sessRepo().DeleteExpired(ctx, time.Now())
		})
}
