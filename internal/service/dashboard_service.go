package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/kps-school/kps-api/internal/models"
	appErrors "github.com/kps-school/kps-api/pkg/errors"
)

type dashboardStudentRepo interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	CountActive(ctx context.Context) (int, error)
}

type dashboardUserRepo interface {
	CountByRole(ctx context.Context, role models.UserRole) (int, error)
}

type dashboardClassRepo interface {
	Count(ctx context.Context) (int, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]models.SchoolClass, error)
}

type dashboardBehaviourRepo interface {
	Recent(ctx context.Context, limit int) ([]models.BehaviourIncident, error)
}

type unreadCounter interface {
	UnreadCount(ctx context.Context, userID string) (int, error)
}

type notificationCounter interface {
	CountUnreadByUser(ctx context.Context, userID string) (int, error)
}

// AdminDashboard summarises the whole school.
type AdminDashboard struct {
	ActiveStudents  int                        `json:"active_students"`
	Teachers        int                        `json:"teachers"`
	Parents         int                        `json:"parents"`
	Classes         int                        `json:"classes"`
	RecentIncidents []models.BehaviourIncident `json:"recent_incidents"`
}

// TeacherDashboard summarises what a teacher is responsible for.
type TeacherDashboard struct {
	Classes         []models.SchoolClass       `json:"classes"`
	RecentIncidents []models.BehaviourIncident `json:"recent_incidents"`
}

// ParentDashboard summarises a parent's children and inbox.
type ParentDashboard struct {
	Children            []models.Student `json:"children"`
	UnreadMessages      int              `json:"unread_messages"`
	UnreadNotifications int              `json:"unread_notifications"`
}

// Dashboard is the role-shaped home payload. Exactly one field is set.
type Dashboard struct {
	Role    models.UserRole   `json:"role"`
	Admin   *AdminDashboard   `json:"admin,omitempty"`
	Teacher *TeacherDashboard `json:"teacher,omitempty"`
	Parent  *ParentDashboard  `json:"parent,omitempty"`
}

// DashboardService assembles the role-shaped home payload.
type DashboardService struct {
	students      dashboardStudentRepo
	users         dashboardUserRepo
	classes       dashboardClassRepo
	incidents     dashboardBehaviourRepo
	messages      unreadCounter
	notifications notificationCounter
	logger        *zap.Logger
}

// NewDashboardService constructs DashboardService.
func NewDashboardService(students dashboardStudentRepo, users dashboardUserRepo, classes dashboardClassRepo, incidents dashboardBehaviourRepo, messages unreadCounter, notifications notificationCounter, logger *zap.Logger) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		students:      students,
		users:         users,
		classes:       classes,
		incidents:     incidents,
		messages:      messages,
		notifications: notifications,
		logger:        logger,
	}
}

const recentIncidentLimit = 5

// Build assembles the dashboard for the actor's role. Admins, staff and
// superusers get the school summary.
func (s *DashboardService) Build(ctx context.Context, actor models.Actor) (*Dashboard, error) {
	switch {
	case actor.Superuser || actor.Role == models.RoleAdmin || actor.Role == models.RoleStaff:
		admin, err := s.buildAdmin(ctx)
		if err != nil {
			return nil, err
		}
		return &Dashboard{Role: actor.Role, Admin: admin}, nil
	case actor.Role == models.RoleTeacher:
		teacher, err := s.buildTeacher(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		return &Dashboard{Role: actor.Role, Teacher: teacher}, nil
	case actor.Role == models.RoleParent:
		parent, err := s.buildParent(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		return &Dashboard{Role: actor.Role, Parent: parent}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "no dashboard for this role")
	}
}

func (s *DashboardService) buildAdmin(ctx context.Context) (*AdminDashboard, error) {
	activeStudents, err := s.students.CountActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count students")
	}
	teachers, err := s.users.CountByRole(ctx, models.RoleTeacher)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count teachers")
	}
	parents, err := s.users.CountByRole(ctx, models.RoleParent)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count parents")
	}
	classes, err := s.classes.Count(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count classes")
	}
	incidents, err := s.incidents.Recent(ctx, recentIncidentLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recent incidents")
	}
	return &AdminDashboard{
		ActiveStudents:  activeStudents,
		Teachers:        teachers,
		Parents:         parents,
		Classes:         classes,
		RecentIncidents: incidents,
	}, nil
}

func (s *DashboardService) buildTeacher(ctx context.Context, teacherID string) (*TeacherDashboard, error) {
	classes, err := s.classes.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	incidents, err := s.incidents.Recent(ctx, recentIncidentLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recent incidents")
	}
	return &TeacherDashboard{Classes: classes, RecentIncidents: incidents}, nil
}

func (s *DashboardService) buildParent(ctx context.Context, parentID string) (*ParentDashboard, error) {
	children, _, err := s.students.List(ctx, models.StudentFilter{GuardianID: parentID, PageSize: 50})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list children")
	}
	unreadMessages, err := s.messages.UnreadCount(ctx, parentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count unread messages")
	}
	unreadNotifications, err := s.notifications.CountUnreadByUser(ctx, parentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count unread notifications")
	}
	return &ParentDashboard{
		Children:            children,
		UnreadMessages:      unreadMessages,
		UnreadNotifications: unreadNotifications,
	}, nil
}
