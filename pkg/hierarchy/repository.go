// Package hierarchy serves the Type > Group > Commitment tree used as
// classification targets.
package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/yurifrl/finbr/pkg/models"
)

// ErrInvalidTarget is returned by ValidateTarget.
var ErrInvalidTarget = errors.New("invalid classification target")

// Source is the backend holding the hierarchy. Implementations return the
// company's own entries plus universal ones.
type Source interface {
	Types(ctx context.Context, companyID string) ([]models.CommitmentType, error)
	Groups(ctx context.Context, companyID string) ([]models.CommitmentGroup, error)
	Commitments(ctx context.Context, companyID string) ([]models.Commitment, error)
}

// Repository reads one company's hierarchy through a snapshot cache. The
// three lists are always loaded together so they stay consistent with each
// other. A TTL of zero disables caching.
type Repository struct {
	logger    *log.Logger
	source    Source
	companyID string
	ttl       time.Duration
	now       func() time.Time

	mu   sync.Mutex
	snap *snapshot
}

type snapshot struct {
	loadedAt    time.Time
	types       []models.CommitmentType
	groups      []models.CommitmentGroup
	commitments []models.Commitment

	typeByID  map[string]models.CommitmentType
	groupByID map[string]models.CommitmentGroup
	leafByID  map[string]models.Commitment
}

func NewRepository(logger *log.Logger, source Source, companyID string, ttl time.Duration) *Repository {
	return &Repository{
		logger:    logger,
		source:    source,
		companyID: companyID,
		ttl:       ttl,
		now:       time.Now,
	}
}

func (r *Repository) CompanyID() string {
	return r.companyID
}

func (r *Repository) ListTypes(ctx context.Context) ([]models.CommitmentType, error) {
	snap, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.CommitmentType, len(snap.types))
	copy(out, snap.types)
	return out, nil
}

// ListGroups returns the groups of typeID, or every group when typeID is empty.
func (r *Repository) ListGroups(ctx context.Context, typeID string) ([]models.CommitmentGroup, error) {
	snap, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.CommitmentGroup, 0, len(snap.groups))
	for _, g := range snap.groups {
		if typeID == "" || g.TypeID == typeID {
			out = append(out, g)
		}
	}
	return out, nil
}

// ListCommitments returns the commitments of groupID, or all of them when
// groupID is empty.
func (r *Repository) ListCommitments(ctx context.Context, groupID string) ([]models.Commitment, error) {
	snap, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Commitment, 0, len(snap.commitments))
	for _, c := range snap.commitments {
		if groupID == "" || c.GroupID == groupID {
			out = append(out, c)
		}
	}
	return out, nil
}

// Invalidate drops the cached snapshot. Call it after any hierarchy write.
func (r *Repository) Invalidate() {
	r.mu.Lock()
	r.snap = nil
	r.mu.Unlock()
}

// ValidateTarget checks that target names a visible commitment whose group and
// type match.
func (r *Repository) ValidateTarget(ctx context.Context, target models.Target) error {
	snap, err := r.load(ctx)
	if err != nil {
		return err
	}

	leaf, ok := snap.leafByID[target.CommitmentID]
	if !ok {
		return fmt.Errorf("%w: unknown commitment %q", ErrInvalidTarget, target.CommitmentID)
	}
	if target.GroupID != "" && leaf.GroupID != target.GroupID {
		return fmt.Errorf("%w: commitment %q is not in group %q", ErrInvalidTarget, leaf.ID, target.GroupID)
	}
	if target.TypeID != "" && leaf.TypeID != target.TypeID {
		return fmt.Errorf("%w: commitment %q is not of type %q", ErrInvalidTarget, leaf.ID, target.TypeID)
	}
	return nil
}

// Resolve fills the group and type of a target from its commitment.
func (r *Repository) Resolve(ctx context.Context, commitmentID string) (models.Target, error) {
	snap, err := r.load(ctx)
	if err != nil {
		return models.Target{}, err
	}
	leaf, ok := snap.leafByID[commitmentID]
	if !ok {
		return models.Target{}, fmt.Errorf("%w: unknown commitment %q", ErrInvalidTarget, commitmentID)
	}
	return leaf.Target(), nil
}

func (r *Repository) load(ctx context.Context) (*snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.snap != nil && r.ttl > 0 && r.now().Sub(r.snap.loadedAt) < r.ttl {
		return r.snap, nil
	}

	types, err := r.source.Types(ctx, r.companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load commitment types: %w", err)
	}
	groups, err := r.source.Groups(ctx, r.companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load commitment groups: %w", err)
	}
	commitments, err := r.source.Commitments(ctx, r.companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load commitments: %w", err)
	}

	snap := r.build(types, groups, commitments)
	snap.loadedAt = r.now()
	if r.ttl > 0 {
		r.snap = snap
	}
	return snap, nil
}

// build keeps only usable entries: a group needs a known type and a
// commitment needs a kept group of the same type.
func (r *Repository) build(types []models.CommitmentType, groups []models.CommitmentGroup, commitments []models.Commitment) *snapshot {
	s := &snapshot{
		typeByID:  make(map[string]models.CommitmentType, len(types)),
		groupByID: make(map[string]models.CommitmentGroup, len(groups)),
		leafByID:  make(map[string]models.Commitment, len(commitments)),
	}

	types = visibleTo(r.companyID, types, func(t models.CommitmentType) (string, bool) { return t.ID, t.Universal })
	groups = visibleTo(r.companyID, groups, func(g models.CommitmentGroup) (string, bool) { return g.ID, g.Universal })
	commitments = visibleTo(r.companyID, commitments, func(c models.Commitment) (string, bool) { return c.ID, c.Universal })

	for _, t := range types {
		s.types = append(s.types, t)
		s.typeByID[t.ID] = t
	}

	for _, g := range groups {
		if _, ok := s.typeByID[g.TypeID]; !ok {
			r.logger.Debug("hiding group with unknown type", "group", g.ID, "type", g.TypeID)
			continue
		}
		s.groups = append(s.groups, g)
		s.groupByID[g.ID] = g
	}

	for _, c := range commitments {
		group, ok := s.groupByID[c.GroupID]
		if !ok {
			r.logger.Debug("hiding commitment with unknown group", "commitment", c.ID, "group", c.GroupID)
			continue
		}
		if group.TypeID != c.TypeID {
			r.logger.Debug("hiding commitment with mismatched type", "commitment", c.ID, "type", c.TypeID, "group_type", group.TypeID)
			continue
		}
		s.commitments = append(s.commitments, c)
		s.leafByID[c.ID] = c
	}

	return s
}

type visibleEntry interface {
	VisibleTo(companyID string) bool
}

// visibleTo keeps the entries the company can see. A company entry shadows a
// universal entry with the same id.
func visibleTo[T visibleEntry](companyID string, items []T, key func(T) (id string, universal bool)) []T {
	owned := make(map[string]bool)
	for _, it := range items {
		if id, universal := key(it); !universal && it.VisibleTo(companyID) {
			owned[id] = true
		}
	}

	out := make([]T, 0, len(items))
	for _, it := range items {
		if !it.VisibleTo(companyID) {
			continue
		}
		if id, universal := key(it); universal && owned[id] {
			continue
		}
		out = append(out, it)
	}
	return out
}
