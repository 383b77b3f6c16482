package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/kps-school/kps-api/internal/service"
	appErrors "github.com/kps-school/kps-api/pkg/errors"
	"github.com/kps-school/kps-api/pkg/response"
)

// ReportHandler serves rendered term reports.
type ReportHandler struct {
	reports *service.ReportService
}

// NewReportHandler constructs ReportHandler.
func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// TermReport godoc
// @Summary Download a student's term report
// @Tags Reports
// @Produce application/pdf
// @Param id path string true "Student ID"
// @Param termId path string true "Term ID"
// @Param format query string false "pdf or csv"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /students/{id}/reports/{termId} [get]
func (h *ReportHandler) TermReport(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	format := service.ReportFormat(c.Query("format"))
	report, err := h.reports.TermReport(c.Request.Context(), actor, c.Param("id"), c.Param("termId"), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+report.FileName+`"`)
	c.Data(200, report.ContentType, report.Content)
}
