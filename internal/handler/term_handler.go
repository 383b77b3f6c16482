package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kps-school/kps-api/internal/service"
	appErrors "github.com/kps-school/kps-api/pkg/errors"
	"github.com/kps-school/kps-api/pkg/response"
)

// TermHandler exposes academic year and term endpoints.
type TermHandler struct {
	terms *service.TermService
}

// NewTermHandler constructs TermHandler.
func NewTermHandler(terms *service.TermService) *TermHandler {
	return &TermHandler{terms: terms}
}

// ListYears godoc
// @Summary List academic years
// @Tags Terms
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /academic-years [get]
func (h *TermHandler) ListYears(c *gin.Context) {
	years, err := h.terms.ListYears(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, years, nil)
}

// CreateYear godoc
// @Summary Create an academic year
// @Tags Terms
// @Accept json
// @Produce json
// @Param payload body service.CreateYearRequest true "Academic year payload"
// @Success 201 {object} response.Envelope
// @Router /academic-years [post]
func (h *TermHandler) CreateYear(c *gin.Context) {
	var req service.CreateYearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid academic year payload"))
		return
	}
	year, err := h.terms.CreateYear(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, year)
}

// ListTerms godoc
// @Summary List terms
// @Tags Terms
// @Produce json
// @Param academicYearId query string false "Filter by academic year"
// @Success 200 {object} response.Envelope
// @Router /terms [get]
func (h *TermHandler) ListTerms(c *gin.Context) {
	terms, err := h.terms.ListTerms(c.Request.Context(), c.Query("academicYearId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, terms, nil)
}

// CreateTerm godoc
// @Summary Create a term
// @Tags Terms
// @Accept json
// @Produce json
// @Param payload body service.CreateTermRequest true "Term payload"
// @Success 201 {object} response.Envelope
// @Router /terms [post]
func (h *TermHandler) CreateTerm(c *gin.Context) {
	var req service.CreateTermRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid term payload"))
		return
	}
	term, err := h.terms.CreateTerm(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, term)
}
