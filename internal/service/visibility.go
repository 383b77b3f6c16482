package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/kps-school/kps-api/internal/models"
	appErrors "github.com/kps-school/kps-api/pkg/errors"
)

// AccessScope describes how much of a student-linked collection an actor may
// see.
type AccessScope int

const (
	// ScopeNone denies access entirely. Roles without an explicit rule
	// land here; the layer fails closed.
	ScopeNone AccessScope = iota
	// ScopeGuardian restricts results to students the actor guards.
	ScopeGuardian
	// ScopeFull grants the whole collection.
	ScopeFull
)

type guardianChecker interface {
	IsGuardian(ctx context.Context, studentID, userID string) (bool, error)
}

// StudentRef resolves the student a resource belongs to. Each resource kind
// supplies its own resolution (identity for students, a relation read for
// grades, attendance and incidents).
type StudentRef func(ctx context.Context) (string, error)

// StudentSelf is the identity resolution for resources that are students.
func StudentSelf(studentID string) StudentRef {
	return func(context.Context) (string, error) { return studentID, nil }
}

// VisibilityService is the single authorization predicate applied across
// every student-linked resource. It narrows collections for list operations
// and gates object-level reads.
type VisibilityService struct {
	guardians guardianChecker
	logger    *zap.Logger
}

// NewVisibilityService constructs the visibility layer.
func NewVisibilityService(guardians guardianChecker, logger *zap.Logger) *VisibilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VisibilityService{guardians: guardians, logger: logger}
}

// Scope returns the collection scope for the actor. Admins and teachers see
// everything, parents see their children, every other role sees nothing.
func (s *VisibilityService) Scope(actor models.Actor) AccessScope {
	if actor.Superuser {
		return ScopeFull
	}
	switch actor.Role {
	case models.RoleAdmin, models.RoleTeacher:
		return ScopeFull
	case models.RoleParent:
		return ScopeGuardian
	default:
		return ScopeNone
	}
}

// Authorize gates an object-level action. Full-scope actors pass
// immediately; parents pass only when the resolved student is among their
// children. Resolution failures deny.
func (s *VisibilityService) Authorize(ctx context.Context, actor models.Actor, ref StudentRef) error {
	switch s.Scope(actor) {
	case ScopeFull:
		return nil
	case ScopeGuardian:
	default:
		return appErrors.ErrForbidden
	}

	if ref == nil {
		return appErrors.ErrForbidden
	}
	studentID, err := ref(ctx)
	if err != nil || studentID == "" {
		s.logger.Debug("visibility resolution failed, denying",
			zap.String("actor_id", actor.ID), zap.Error(err))
		return appErrors.ErrForbidden
	}

	isGuardian, err := s.guardians.IsGuardian(ctx, studentID, actor.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve guardianship")
	}
	if !isGuardian {
		return appErrors.ErrForbidden
	}
	return nil
}
