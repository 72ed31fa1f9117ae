package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edustack/campus-api/internal/middleware"
	"github.com/edustack/campus-api/internal/models"
	"github.com/edustack/campus-api/internal/service"
	appErrors "github.com/edustack/campus-api/pkg/errors"
	"github.com/edustack/campus-api/pkg/response"
)

// CourseHandler serves course catalog and instructor assignment endpoints.
type CourseHandler struct {
	courses *service.CourseService
}

// NewCourseHandler constructs the course handler.
func NewCourseHandler(courses *service.CourseService) *CourseHandler {
	return &CourseHandler{courses: courses}
}

type assignInstructorRequest struct {
	InstructorID string `json:"instructor_id" binding:"required"`
}

// List godoc
// @Summary List courses visible to the caller
// @Tags courses
// @Produce json
// @Security BearerAuth
// @Param department_id query string false "Filter by department"
// @Param semester query string false "Filter by semester"
// @Param year query int false "Filter by year"
// @Success 200 {object} response.Envelope{data=[]models.CourseDetail}
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	filter := models.CourseFilter{
		DepartmentID: c.Query("department_id"),
		Semester:     c.Query("semester"),
		Year:         intQuery(c, "year"),
		Page:         intQuery(c, "page"),
		PageSize:     intQuery(c, "page_size"),
		SortBy:       c.Query("sort_by"),
		SortOrder:    c.Query("sort_order"),
	}
	courses, pagination, err := h.courses.List(c.Request.Context(), middleware.CurrentIdentity(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, pagination)
}

// Get godoc
// @Summary Get one course
// @Tags courses
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope{data=models.Course}
// @Failure 403 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	course, err := h.courses.Get(c.Request.Context(), middleware.CurrentIdentity(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Create godoc
// @Summary Create a course
// @Tags courses
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.CourseRequest true "Course"
// @Success 201 {object} response.Envelope{data=models.Course}
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	var req models.CourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	course, err := h.courses.Create(c.Request.Context(), middleware.CurrentIdentity(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// Update godoc
// @Summary Update a course
// @Tags courses
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param request body models.CourseRequest true "Course"
// @Success 200 {object} response.Envelope{data=models.Course}
// @Router /courses/{id} [put]
func (h *CourseHandler) Update(c *gin.Context) {
	var req models.CourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	course, err := h.courses.Update(c.Request.Context(), middleware.CurrentIdentity(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Delete godoc
// @Summary Delete a course
// @Tags courses
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 204 "No Content"
// @Router /courses/{id} [delete]
func (h *CourseHandler) Delete(c *gin.Context) {
	if err := h.courses.Delete(c.Request.Context(), middleware.CurrentIdentity(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListInstructors godoc
// @Summary List secondary instructors of a course
// @Tags courses
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope{data=[]models.CourseInstructor}
// @Router /courses/{id}/instructors [get]
func (h *CourseHandler) ListInstructors(c *gin.Context) {
	assignments, err := h.courses.ListInstructors(c.Request.Context(), middleware.CurrentIdentity(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, nil)
}

// AssignInstructor godoc
// @Summary Assign a secondary instructor to a course
// @Tags courses
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param request body assignInstructorRequest true "Instructor"
// @Success 201 {object} response.Envelope{data=models.CourseInstructor}
// @Router /courses/{id}/instructors [post]
func (h *CourseHandler) AssignInstructor(c *gin.Context) {
	var req assignInstructorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	assignment, err := h.courses.AssignInstructor(c.Request.Context(), middleware.CurrentIdentity(c), c.Param("id"), req.InstructorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// UnassignInstructor godoc
// @Summary Remove a secondary instructor from a course
// @Tags courses
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param instructorId path string true "Instructor ID"
// @Success 204 "No Content"
// @Router /courses/{id}/instructors/{instructorId} [delete]
func (h *CourseHandler) UnassignInstructor(c *gin.Context) {
	err := h.courses.UnassignInstructor(c.Request.Context(), middleware.CurrentIdentity(c), c.Param("id"), c.Param("instructorId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
