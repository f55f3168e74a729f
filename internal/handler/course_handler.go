package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"super-feynman-go/internal/service"
	"super-feynman-go/pkg/apperr"
)

// CourseHandler 负责处理课程相关的 API 请求。
type CourseHandler struct {
	courseService  service.CourseService
	lectureService service.LectureService
}

// NewCourseHandler 创建一个新的 CourseHandler 实例。
func NewCourseHandler(courseService service.CourseService, lectureService service.LectureService) *CourseHandler {
	return &CourseHandler{courseService: courseService, lectureService: lectureService}
}

type createCourseRequest struct {
	Name string `json:"name"`
}

// Create 处理创建课程的请求。
func (h *CourseHandler) Create(c *gin.Context) {
	var req createCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, "CourseHandler.Create", fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err))
		return
	}
	course, err := h.courseService.Create(c.Request.Context(), req.Name)
	if err != nil {
		fail(c, "CourseHandler.Create", err)
		return
	}
	success(c, http.StatusCreated, "课程创建成功", course)
}

// List 返回全部课程，最新的在前。
func (h *CourseHandler) List(c *gin.Context) {
	courses, err := h.courseService.List(c.Request.Context())
	if err != nil {
		fail(c, "CourseHandler.List", err)
		return
	}
	success(c, http.StatusOK, "获取课程列表成功", courses)
}

// Delete 删除课程及其下所有数据。
func (h *CourseHandler) Delete(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		fail(c, "CourseHandler.Delete", err)
		return
	}
	if err := h.courseService.Delete(c.Request.Context(), id); err != nil {
		fail(c, "CourseHandler.Delete", err)
		return
	}
	success(c, http.StatusOK, "课程删除成功", nil)
}

// ListLectures 返回课程下的讲义列表。
func (h *CourseHandler) ListLectures(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		fail(c, "CourseHandler.ListLectures", err)
		return
	}
	lectures, err := h.lectureService.List(c.Request.Context(), id)
	if err != nil {
		fail(c, "CourseHandler.ListLectures", err)
		return
	}
	success(c, http.StatusOK, "获取讲义列表成功", lectures)
}
