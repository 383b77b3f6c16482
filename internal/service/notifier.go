package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kps-school/kps-api/internal/models"
)

type guardianLister interface {
	GuardianIDs(ctx context.Context, studentID string) ([]string, error)
}

type notificationWriter interface {
	Create(ctx context.Context, n *models.Notification) error
}

type fanoutRecorder interface {
	ObserveFanout(kind string, created int)
}

// NotifierService fans a qualifying write out to the affected student's
// guardians: one Notification row per guardian, no batching, no
// deduplication. It is invoked synchronously by the grade and behaviour
// write paths, on creation only. Failures are logged and never abort the
// triggering write.
type NotifierService struct {
	guardians     guardianLister
	notifications notificationWriter
	metrics       fanoutRecorder
	enabled       bool
	logger        *zap.Logger
}

// NewNotifierService constructs the fan-out hook. metrics may be nil.
func NewNotifierService(guardians guardianLister, notifications notificationWriter, metrics fanoutRecorder, enabled bool, logger *zap.Logger) *NotifierService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotifierService{guardians: guardians, notifications: notifications, metrics: metrics, enabled: enabled, logger: logger}
}

// GradeRecorded notifies every guardian of the student about a new grade
// entry. Returns the number of notifications written.
func (s *NotifierService) GradeRecorded(ctx context.Context, student *models.Student, assessment *models.Assessment, grade *models.GradeEntry) int {
	title := fmt.Sprintf("New grade for %s", student.FirstName)
	message := fmt.Sprintf("%s - %g", assessment.Title, grade.Score)
	if grade.Remarks != "" {
		message = fmt.Sprintf("%s. Remarks: %s", message, grade.Remarks)
	}
	link := fmt.Sprintf("/students/%s/reports/%s", student.ID, assessment.ID)
	return s.fanOut(ctx, "grade", student.ID, title, message, link)
}

// IncidentReported notifies every guardian of the student about a behaviour
// incident. Returns the number of notifications written.
func (s *NotifierService) IncidentReported(ctx context.Context, student *models.Student, incident *models.BehaviourIncident) int {
	title := fmt.Sprintf("Behaviour incident for %s", student.FirstName)
	link := fmt.Sprintf("/students/%s/incidents/%s", student.ID, incident.ID)
	return s.fanOut(ctx, "incident", student.ID, title, incident.Description, link)
}

func (s *NotifierService) fanOut(ctx context.Context, kind, studentID, title, message, link string) int {
	if s == nil || !s.enabled {
		return 0
	}

	guardianIDs, err := s.guardians.GuardianIDs(ctx, studentID)
	if err != nil {
		s.logger.Error("guardian fan-out: failed to resolve guardians",
			zap.String("student_id", studentID), zap.Error(err))
		return 0
	}

	created := 0
	for _, guardianID := range guardianIDs {
		n := &models.Notification{
			UserID:  guardianID,
			Title:   title,
			Message: message,
			Link:    link,
		}
		if err := s.notifications.Create(ctx, n); err != nil {
			s.logger.Error("guardian fan-out: failed to create notification",
				zap.String("student_id", studentID),
				zap.String("guardian_id", guardianID),
				zap.Error(err))
			continue
		}
		created++
	}
	if s.metrics != nil {
		s.metrics.ObserveFanout(kind, created)
	}
	return created
}
