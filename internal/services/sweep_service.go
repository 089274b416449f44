// Package services – SweepService
//
// This file implements the SweepService, the authorization-scoped batch
// operation that closes conversations abandoned by visitors who navigated
// away without a clean close signal. The sweep is monotonic (active->closed
// only, threshold always relative to now) so re-running it immediately closes
// nothing further.
//
// The sweep iterates scoped properties and commits one batched UPDATE per
// property. It is deliberately non-transactional across properties: a failure
// on property N keeps closures already committed for earlier properties.
// Best-effort is what the callers (a scheduler) expect; a cross-property
// transaction would add coordination the operation does not need.
package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Staleness threshold bounds in seconds. Requested values are clamped into
// [MinStaleSeconds, MaxStaleSeconds]; zero/absent falls back to the service
// default.
const (
	MinStaleSeconds = 10
	MaxStaleSeconds = 3600
)

// SweepRepo defines the repository contract required by SweepService.
type SweepRepo interface {
	// IsPropertyOwner reports whether userID owns propertyID.
	IsPropertyOwner(ctx context.Context, db *gorm.DB, propertyID, userID string) (bool, error)

	// IsPropertyAgent reports whether userID is an assigned agent of propertyID.
	IsPropertyAgent(ctx context.Context, db *gorm.DB, propertyID, userID string) (bool, error)

	// ListOwnedPropertyIDs returns every property id owned by userID.
	ListOwnedPropertyIDs(ctx context.Context, db *gorm.DB, userID string) ([]string, error)

	// ListAgentPropertyIDs returns every property id userID is assigned to.
	ListAgentPropertyIDs(ctx context.Context, db *gorm.DB, userID string) ([]string, error)

	// CloseStale closes a property's active conversations older than
	// threshold in one batched update and returns the affected row count.
	CloseStale(ctx context.Context, db *gorm.DB, propertyID string, threshold, now time.Time) (int64, error)
}

// SweepService closes stale conversations across the caller's properties.
type SweepService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the repository used by this service.
	Repo SweepRepo

	// DefaultStaleSeconds is used when the caller supplies no threshold.
	DefaultStaleSeconds int
}

// NewSweepService constructs a SweepService with the default threshold.
func NewSweepService(db *gorm.DB, r SweepRepo) *SweepService {
	return &SweepService{DB: db, Repo: r, DefaultStaleSeconds: 45}
}

// SweepResult reports what one sweep run did.
type SweepResult struct {
	// ClosedCount is the total number of conversations closed.
	ClosedCount int64
	// StaleSeconds is the effective (clamped) threshold used.
	StaleSeconds int
	// PropertyIDs is the property scope the sweep operated over.
	PropertyIDs []string
}

// Sweep closes every active conversation in scope whose updated_at is older
// than now minus the staleness threshold.
//
// Scope resolution:
//   - With propertyID set, the caller must own the property or be an assigned
//     agent; either predicate suffices, neither yields ErrForbiddenScope.
//   - With propertyID empty, the scope is the union of owned and assigned
//     properties. An empty union succeeds with zero closed.
//   - A failure while resolving the scope aborts the whole sweep rather than
//     silently under-scoping it; the sweep is idempotent and re-runnable, so
//     aborting is safe.
//
// The per-property updates run sequentially; an update failure surfaces as
// the operation's single error while keeping earlier closures.
func (s *SweepService) Sweep(ctx context.Context, userID, propertyID string, staleSeconds int) (SweepResult, error) {
	tr := otel.Tracer("services/SweepService")
	ctx, span := tr.Start(ctx, "Sweep",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("property.id", propertyID),
			attribute.Int("stale.seconds", staleSeconds),
		),
	)
	defer span.End()

	staleSeconds = s.clampStale(staleSeconds)

	var scope []string
	if propertyID != "" {
		owner, err := s.Repo.IsPropertyOwner(ctx, s.DB, propertyID, userID)
		if err != nil {
			return SweepResult{}, err
		}
		if !owner {
			agent, err := s.Repo.IsPropertyAgent(ctx, s.DB, propertyID, userID)
			if err != nil {
				return SweepResult{}, err
			}
			if !agent {
				return SweepResult{}, ErrForbiddenScope
			}
		}
		scope = []string{propertyID}
	} else {
		owned, err := s.Repo.ListOwnedPropertyIDs(ctx, s.DB, userID)
		if err != nil {
			return SweepResult{}, err
		}
		assigned, err := s.Repo.ListAgentPropertyIDs(ctx, s.DB, userID)
		if err != nil {
			return SweepResult{}, err
		}
		scope = unionIDs(owned, assigned)
	}

	res := SweepResult{StaleSeconds: staleSeconds, PropertyIDs: scope}
	if len(scope) == 0 {
		res.PropertyIDs = []string{}
		return res, nil
	}

	now := time.Now().UTC()
	threshold := now.Add(-time.Duration(staleSeconds) * time.Second)
	for _, pid := range scope {
		n, err := s.Repo.CloseStale(ctx, s.DB, pid, threshold, now)
		if err != nil {
			return res, err
		}
		res.ClosedCount += n
	}
	return res, nil
}

// clampStale applies the default and bounds the threshold to
// [MinStaleSeconds, MaxStaleSeconds].
func (s *SweepService) clampStale(sec int) int {
	if sec <= 0 {
		sec = s.DefaultStaleSeconds
	}
	if sec < MinStaleSeconds {
		sec = MinStaleSeconds
	}
	if sec > MaxStaleSeconds {
		sec = MaxStaleSeconds
	}
	return sec
}

// unionIDs merges two id slices preserving first-seen order and dropping
// duplicates.
func unionIDs(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, id := range a {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	for _, id := range b {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
