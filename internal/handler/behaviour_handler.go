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

// BehaviourHandler exposes behaviour incident endpoints.
type BehaviourHandler struct {
	incidents *service.BehaviourService
}

// NewBehaviourHandler constructs BehaviourHandler.
func NewBehaviourHandler(incidents *service.BehaviourService) *BehaviourHandler {
	return &BehaviourHandler{incidents: incidents}
}

// List godoc
// @Summary List incidents visible to the caller
// @Tags Behaviour
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param severity query []string false "Filter by severity" collectionFormat(multi)
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /incidents [get]
func (h *BehaviourHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var filter models.BehaviourFilter
	filter.StudentID = c.Query("studentId")
	for _, s := range c.QueryArray("severity") {
		severity := models.IncidentSeverity(s)
		if severity.Valid() {
			filter.Severities = append(filter.Severities, severity)
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	incidents, pagination, err := h.incidents.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, incidents, pagination)
}

// Get godoc
// @Summary Get one incident
// @Tags Behaviour
// @Produce json
// @Param id path string true "Incident ID"
// @Success 200 {object} response.Envelope
// @Router /incidents/{id} [get]
func (h *BehaviourHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	incident, err := h.incidents.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, incident, nil)
}

// Report godoc
// @Summary Report a behaviour incident
// @Tags Behaviour
// @Accept json
// @Produce json
// @Param payload body service.ReportIncidentRequest true "Incident payload"
// @Success 201 {object} response.Envelope
// @Router /incidents [post]
func (h *BehaviourHandler) Report(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.ReportIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid incident payload"))
		return
	}
	incident, err := h.incidents.Report(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, incident)
}
