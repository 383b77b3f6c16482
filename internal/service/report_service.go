package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kps-school/kps-api/internal/models"
	appErrors "github.com/kps-school/kps-api/pkg/errors"
	"github.com/kps-school/kps-api/pkg/export"
)

type reportGradeRepo interface {
	ReportRows(ctx context.Context, studentID, termID string, limit int) ([]models.GradeReportRow, error)
}

type reportTermRepo interface {
	FindTermByID(ctx context.Context, id string) (*models.Term, error)
}

// ReportFormat selects the rendered output type.
type ReportFormat string

const (
	FormatPDF ReportFormat = "pdf"
	FormatCSV ReportFormat = "csv"
)

// Report is a rendered term report ready to be served as a download.
type Report struct {
	FileName    string
	ContentType string
	Content     []byte
}

// ReportConfig bounds report generation.
type ReportConfig struct {
	DefaultFormat string
	MaxGradeRows  int
}

// ReportService renders per-student term reports. Access follows the
// same visibility rules as the underlying grades.
type ReportService struct {
	grades     reportGradeRepo
	students   studentReader
	terms      reportTermRepo
	visibility *VisibilityService
	pdf        *export.PDFExporter
	csv        *export.CSVExporter
	config     ReportConfig
	logger     *zap.Logger
}

// NewReportService constructs ReportService.
func NewReportService(grades reportGradeRepo, students studentReader, terms reportTermRepo, visibility *VisibilityService, config ReportConfig, logger *zap.Logger) *ReportService {
	if config.MaxGradeRows <= 0 {
		config.MaxGradeRows = 200
	}
	if config.DefaultFormat == "" {
		config.DefaultFormat = string(FormatPDF)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		grades:     grades,
		students:   students,
		terms:      terms,
		visibility: visibility,
		pdf:        export.NewPDFExporter(),
		csv:        export.NewCSVExporter(),
		config:     config,
		logger:     logger,
	}
}

// TermReport renders the student's grades for one term in the requested
// format.
func (s *ReportService) TermReport(ctx context.Context, actor models.Actor, studentID, termID string, format ReportFormat) (*Report, error) {
	if format == "" {
		format = ReportFormat(s.config.DefaultFormat)
	}
	if format != FormatPDF && format != FormatCSV {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported report format")
	}

	if err := s.visibility.Authorize(ctx, actor, StudentSelf(studentID)); err != nil {
		return nil, err
	}

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	term, err := s.terms.FindTermByID(ctx, termID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}

	rows, err := s.grades.ReportRows(ctx, studentID, termID, s.config.MaxGradeRows)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report rows")
	}

	data := export.Dataset{
		Headers: []string{"Subject", "Assessment", "Type", "Score", "Weight", "Remarks"},
	}
	for _, row := range rows {
		data.Rows = append(data.Rows, map[string]string{
			"Subject":    row.Subject,
			"Assessment": row.Assessment,
			"Type":       row.Type,
			"Score":      strconv.FormatFloat(row.Score, 'f', 1, 64),
			"Weight":     strconv.FormatFloat(row.Weight, 'f', 2, 64),
			"Remarks":    row.Remarks,
		})
	}

	base := fmt.Sprintf("term-report-%s-%s", student.AdmissionNumber, term.Name)
	switch format {
	case FormatCSV:
		content, err := s.csv.Render(data)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv report")
		}
		return &Report{FileName: base + ".csv", ContentType: "text/csv", Content: content}, nil
	default:
		title := "Term Report"
		preamble := []string{
			fmt.Sprintf("Student: %s %s (%s)", student.FirstName, student.LastName, student.AdmissionNumber),
			fmt.Sprintf("Term: %s (%s to %s)", term.Name,
				term.StartDate.Format("2006-01-02"), term.EndDate.Format("2006-01-02")),
			fmt.Sprintf("Generated: %s", time.Now().UTC().Format(time.RFC3339)),
		}
		content, err := s.pdf.Render(data, title, preamble...)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf report")
		}
		return &Report{FileName: base + ".pdf", ContentType: "application/pdf", Content: content}, nil
	}
}
