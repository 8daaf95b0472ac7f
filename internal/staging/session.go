// Package staging holds parsed uploads between preview and commit.
//
// A session is scoped to one tenant and one kind and expires a fixed window
// after it was staged. Staging a new file for the same (tenant, kind)
// invalidates the previous session, so an old preview can never be
// committed after a newer upload. Sessions are consumed at most once:
// Claim hands a session to exactly one committer, Complete removes it.
package staging

import (
	"context"
	"time"

	"github.com/JonMunkholm/profitrecon/internal/core"
)

const (
	// DefaultTTL is the preview window.
	DefaultTTL = 15 * time.Minute

	// DefaultGrace keeps expired sessions around long enough to report
	// SessionExpired instead of SessionNotFound.
	DefaultGrace = 15 * time.Minute

	// claimTTL bounds how long a crashed committer can hold a session.
	claimTTL = 5 * time.Minute
)

// Session is a staged, parsed file.
type Session struct {
	Token     string
	TenantID  string
	Kind      core.Kind
	FileName  string
	Rows      []core.RowOutcome
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the preview window has closed at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Records returns the candidate records of valid rows in file order.
func (s *Session) Records() []core.Record {
	out := make([]core.Record, 0, len(s.Rows))
	for _, r := range s.Rows {
		if r.Valid() {
			out = append(out, r.Record)
		}
	}
	return out
}

// Counts returns the total, valid and invalid row counts.
func (s *Session) Counts() (total, valid, invalid int) {
	for _, r := range s.Rows {
		if r.Valid() {
			valid++
		}
	}
	total = len(s.Rows)
	return total, valid, total - valid
}

// Store is implemented by the memory and Redis backends.
type Store interface {
	// Stage stores rows as the current session for (tenant, kind),
	// invalidating any previous one.
	Stage(ctx context.Context, tenant string, kind core.Kind, fileName string, rows []core.RowOutcome) (*Session, error)

	// Fetch returns a session without consuming it.
	Fetch(ctx context.Context, tenant, token string) (*Session, error)

	// Claim hands the session to a single committer. A second Claim fails
	// with ErrSessionNotFound until Release is called.
	Claim(ctx context.Context, tenant, token string) (*Session, error)

	// Release undoes a Claim after a failed commit.
	Release(ctx context.Context, token string) error

	// Complete removes a claimed session after a successful commit.
	Complete(ctx context.Context, token string) error

	// Discard drops a session without committing it.
	Discard(ctx context.Context, tenant, token string) error
}

// Options configures a store.
type Options struct {
	TTL   time.Duration
	Grace time.Duration
	Now   func() time.Time
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.Grace < 0 {
		o.Grace = 0
	} else if o.Grace == 0 {
		o.Grace = DefaultGrace
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
