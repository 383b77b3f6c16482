package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kps-school/kps-api/internal/models"
	"github.com/kps-school/kps-api/internal/service"
	appErrors "github.com/kps-school/kps-api/pkg/errors"
	"github.com/kps-school/kps-api/pkg/response"
)

// AssessmentHandler exposes assessment endpoints.
type AssessmentHandler struct {
	assessments *service.AssessmentService
}

// NewAssessmentHandler constructs AssessmentHandler.
func NewAssessmentHandler(assessments *service.AssessmentService) *AssessmentHandler {
	return &AssessmentHandler{assessments: assessments}
}

// List godoc
// @Summary List assessments
// @Tags Assessments
// @Produce json
// @Param classId query string false "Filter by class"
// @Param subjectId query string false "Filter by subject"
// @Param termId query string false "Filter by term"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /assessments [get]
func (h *AssessmentHandler) List(c *gin.Context) {
	var filter models.AssessmentFilter
	filter.ClassID = c.Query("classId")
	filter.SubjectID = c.Query("subjectId")
	filter.TermID = c.Query("termId")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	assessments, pagination, err := h.assessments.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assessments, pagination)
}

// Get godoc
// @Summary Get assessment detail
// @Tags Assessments
// @Produce json
// @Param id path string true "Assessment ID"
// @Success 200 {object} response.Envelope
// @Router /assessments/{id} [get]
func (h *AssessmentHandler) Get(c *gin.Context) {
	assessment, err := h.assessments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assessment, nil)
}

// Create godoc
// @Summary Create an assessment
// @Tags Assessments
// @Accept json
// @Produce json
// @Param payload body service.CreateAssessmentRequest true "Assessment payload"
// @Success 201 {object} response.Envelope
// @Router /assessments [post]
func (h *AssessmentHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreateAssessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assessment payload"))
		return
	}
	assessment, err := h.assessments.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assessment)
}
