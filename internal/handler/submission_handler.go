package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/edustack/campus-api/internal/middleware"
	"github.com/edustack/campus-api/internal/models"
	"github.com/edustack/campus-api/internal/service"
	appErrors "github.com/edustack/campus-api/pkg/errors"
	"github.com/edustack/campus-api/pkg/response"
)

// SubmissionHandler serves submission upload, grading and download
// endpoints.
type SubmissionHandler struct {
	submissions *service.SubmissionService
	logger      *zap.Logger
	maxUpload   int64
}

// NewSubmissionHandler constructs the submission handler.
func NewSubmissionHandler(submissions *service.SubmissionService, logger *zap.Logger, maxUpload int64) *SubmissionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionHandler{submissions: submissions, logger: logger, maxUpload: maxUpload}
}

// Submit godoc
// @Summary Upload a submission file for an assignment
// @Tags submissions
// @Accept mpfd
// @Produce json
// @Security BearerAuth
// @Param assignment_id formData string true "Assignment ID"
// @Param file formData file true "Submission file"
// @Success 201 {object} response.Envelope{data=models.Submission}
// @Failure 403 {object} response.Envelope
// @Router /submissions [post]
func (h *SubmissionHandler) Submit(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+1024*1024)

	assignmentID := c.PostForm("assignment_id")
	if assignmentID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "assignment_id required"))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "file required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "read upload"))
		return
	}
	defer file.Close() //nolint:errcheck

	submission, err := h.submissions.Submit(c.Request.Context(), middleware.CurrentIdentity(c), service.SubmitRequest{
		AssignmentID: assignmentID,
		FileName:     fileHeader.Filename,
		ContentType:  fileHeader.Header.Get("Content-Type"),
		Size:         fileHeader.Size,
		File:         file,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, submission)
}

// List godoc
// @Summary List submissions within the caller's scope
// @Tags submissions
// @Produce json
// @Security BearerAuth
// @Param assignment_id query string false "Filter by assignment"
// @Param graded query bool false "Filter by graded state"
// @Success 200 {object} response.Envelope{data=[]models.SubmissionDetail}
// @Router /submissions [get]
func (h *SubmissionHandler) List(c *gin.Context) {
	filter := models.SubmissionFilter{
		AssignmentID: c.Query("assignment_id"),
		Page:         intQuery(c, "page"),
		PageSize:     intQuery(c, "page_size"),
	}
	if graded := c.Query("graded"); graded != "" {
		parsed, err := strconv.ParseBool(graded)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid graded filter"))
			return
		}
		filter.Graded = &parsed
	}

	submissions, pagination, err := h.submissions.List(c.Request.Context(), middleware.CurrentIdentity(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submissions, pagination)
}

// Get godoc
// @Summary Get one submission
// @Tags submissions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope{data=models.Submission}
// @Failure 403 {object} response.Envelope
// @Router /submissions/{id} [get]
func (h *SubmissionHandler) Get(c *gin.Context) {
	submission, err := h.submissions.Get(c.Request.Context(), middleware.CurrentIdentity(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// Grade godoc
// @Summary Grade a submission
// @Tags submissions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Submission ID"
// @Param request body models.GradeRequest true "Grade"
// @Success 200 {object} response.Envelope{data=models.Submission}
// @Failure 400 {object} response.Envelope
// @Router /submissions/{id}/grade [put]
func (h *SubmissionHandler) Grade(c *gin.Context) {
	var req models.GradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	submission, err := h.submissions.Grade(c.Request.Context(), middleware.CurrentIdentity(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// DownloadURL godoc
// @Summary Issue a signed, time-limited download link for a submission file
// @Tags submissions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope{data=models.SignedDownload}
// @Router /submissions/{id}/download-url [get]
func (h *SubmissionHandler) DownloadURL(c *gin.Context) {
	download, err := h.submissions.DownloadURL(c.Request.Context(), middleware.CurrentIdentity(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, download, nil)
}

// Download godoc
// @Summary Download a submission file with a signed token
// @Tags submissions
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /submissions/download [get]
func (h *SubmissionHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "download token required"))
		return
	}

	result, err := h.submissions.Download(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.File.Close() //nolint:errcheck

	contentType := result.Submission.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", `attachment; filename="`+result.Submission.FileName+`"`)
	c.DataFromReader(http.StatusOK, result.Submission.FileSize, contentType, result.File, nil)
}
