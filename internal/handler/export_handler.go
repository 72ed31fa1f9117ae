package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edustack/campus-api/internal/middleware"
	"github.com/edustack/campus-api/internal/service"
	"github.com/edustack/campus-api/pkg/response"
)

// ExportHandler serves grade report exports.
type ExportHandler struct {
	exports *service.ExportService
}

// NewExportHandler constructs the export handler.
func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// GradeReport godoc
// @Summary Export the grade report of a course as CSV or PDF
// @Tags exports
// @Produce octet-stream
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /courses/{id}/grade-report [get]
func (h *ExportHandler) GradeReport(c *gin.Context) {
	result, err := h.exports.GradeReport(c.Request.Context(), middleware.CurrentIdentity(c), c.Param("id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+result.FileName+`"`)
	c.Data(http.StatusOK, result.ContentType, result.Content)
}
