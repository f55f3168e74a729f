package handler

import "github.com/gin-gonic/gin"

// Handlers 汇总所有路由处理器。
type Handlers struct {
	Course     *CourseHandler
	Lecture    *LectureHandler
	Concept    *ConceptHandler
	Review     *ReviewHandler
	ReviewWS   *ReviewSocketHandler
	Transcribe *TranscribeHandler
	Health     *HealthHandler
}

// RegisterRoutes 注册 /health 与 /api/v1 下的全部路由。
// apiLimit 作用于整个 /api/v1，uploadLimit 额外作用于上传类接口。
func RegisterRoutes(r *gin.Engine, h Handlers, apiLimit, uploadLimit gin.HandlerFunc) {
	if apiLimit == nil {
		apiLimit = passThrough
	}
	if uploadLimit == nil {
		uploadLimit = passThrough
	}
	r.GET("/health", h.Health.Check)

	apiV1 := r.Group("/api/v1")
	apiV1.Use(apiLimit)
	{
		courses := apiV1.Group("/courses")
		{
			courses.POST("", h.Course.Create)
			courses.GET("", h.Course.List)
			courses.DELETE("/:id", h.Course.Delete)
			courses.GET("/:id/lectures", h.Course.ListLectures)
		}

		lectures := apiV1.Group("/lectures")
		{
			lectures.POST("", uploadLimit, h.Lecture.Create)
			lectures.DELETE("/:id", h.Lecture.Delete)
			lectures.GET("/:id/concepts", h.Lecture.ListConcepts)
			lectures.POST("/:id/concepts/regenerate", h.Lecture.RegenerateConcepts)
			lectures.GET("/:id/download", h.Lecture.Download)
		}

		concepts := apiV1.Group("/concepts")
		{
			concepts.GET("/search", h.Concept.Search)
			concepts.PATCH("/:id/progress", h.Concept.UpdateProgress)
			concepts.DELETE("/:id", h.Concept.Delete)
		}

		sessions := apiV1.Group("/review-sessions")
		{
			sessions.POST("", h.Review.Start)
			sessions.GET("/:id", h.Review.Get)
			sessions.POST("/:id/message", h.Review.SendMessage)
			sessions.POST("/:id/end", h.Review.End)
			sessions.GET("/:id/ws", h.ReviewWS.Handle)
		}

		apiV1.POST("/transcribe", uploadLimit, h.Transcribe.Transcribe)
	}
}

func passThrough(c *gin.Context) { c.Next() }
