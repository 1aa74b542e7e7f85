// Package auditlog keeps a local, newest-first copy of the server audit
// trail. Writing and reading are granted separately by the backend: every
// identity may write, only the elevated tier may read.
package auditlog

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/despacho-app/despacho/internal/api"
	"github.com/despacho-app/despacho/internal/gateway"
)

// Access is the read access established for the current session.
type Access int32

const (
	// AccessUnknown means no read was attempted this session.
	AccessUnknown Access = iota
	// AccessDenied means the identity is not allowed to read, or the read failed.
	AccessDenied
	// AccessGranted means the audit collection was listed successfully.
	AccessGranted
)

func (a Access) String() string {
	switch a {
	case AccessDenied:
		return "denied"
	case AccessGranted:
		return "granted"
	default:
		return "unknown"
	}
}

// Recorder receives failures that must not reach the user.
type Recorder interface {
	RecordError(ctx context.Context, source string, err error)
}

// Mirror is the local reflection of /audit-logs.
type Mirror struct {
	logs   api.Collection[api.AuditEntry]
	logger *slog.Logger
	diag   Recorder
	now    func() time.Time

	mu      sync.RWMutex
	entries []api.AuditEntry
	access  Access
}

// NewMirror creates an empty mirror with AccessUnknown. diag may be nil.
func NewMirror(logs api.Collection[api.AuditEntry], logger *slog.Logger, diag Recorder) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}

	return &Mirror{
		logs:   logs,
		logger: logger,
		diag:   diag,
		now:    time.Now,
	}
}

// Load establishes read access for the session. A non-elevated identity is
// denied without a request. Failures leave the mirror empty and denied;
// expected denials are not reported anywhere.
func (m *Mirror) Load(ctx context.Context, elevated bool) Access {
	if !elevated {
		m.replace(nil, AccessDenied)

		return AccessDenied
	}

	entries, err := m.logs.List(ctx)
	if err != nil {
		if gateway.IsExpected(err) {
			m.logger.Debug("audit log not readable", slog.String("error", err.Error()))
		} else {
			m.report(ctx, "auditlog.load", err)
		}

		m.replace(nil, AccessDenied)

		return AccessDenied
	}

	slices.SortStableFunc(entries, func(a, b api.AuditEntry) int {
		return cmp.Compare(b.Timestamp.UnixNano(), a.Timestamp.UnixNano())
	})

	m.replace(entries, AccessGranted)

	m.logger.Debug("audit log loaded", slog.Int("entries", len(entries)))

	return AccessGranted
}

// LogAction submits an entry stamped with the client clock. Failures go to
// the diagnostic channel only. The stored entry is mirrored locally only
// when read access was granted.
func (m *Mirror) LogAction(ctx context.Context, actor api.User, action api.Action, details, targetID string) {
	entry := api.AuditEntry{
		Timestamp: m.now().UTC(),
		UserID:    actor.ID,
		UserName:  actor.Name,
		Action:    action,
		Details:   details,
		TargetID:  targetID,
	}

	created, err := m.logs.Create(ctx, entry)
	if err != nil {
		m.report(ctx, "auditlog.write", err)

		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.access != AccessGranted {
		return
	}

	next := make([]api.AuditEntry, 0, len(m.entries)+1)
	next = append(next, *created)
	m.entries = append(next, m.entries...)
}

// Entries returns a copy of the mirror, newest first.
func (m *Mirror) Entries() []api.AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Clone(m.entries)
}

// Access returns the read access of the current session.
func (m *Mirror) Access() Access {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.access
}

// Reset empties the mirror and forgets the read access.
func (m *Mirror) Reset() {
	m.replace(nil, AccessUnknown)
}

func (m *Mirror) replace(entries []api.AuditEntry, access Access) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = entries
	m.access = access
}

func (m *Mirror) report(ctx context.Context, source string, err error) {
	m.logger.Warn("audit log request failed",
		slog.String("source", source),
		slog.String("error", err.Error()),
	)

	if m.diag != nil {
		m.diag.RecordError(ctx, source, err)
	}
}
