package model

// ConceptDocument 是存储在 Elasticsearch 中的概念文档。
type ConceptDocument struct {
	ConceptID   uint      `json:"concept_id"`
	LectureID   uint      `json:"lecture_id"`
	CourseID    uint      `json:"course_id"`
	Name        string    `json:"concept_name"`
	Description string    `json:"concept_description"`
	Vector      []float32 `json:"vector,omitempty"`
}

// ConceptSearchHit 是返回给前端的概念搜索结果。
type ConceptSearchHit struct {
	ConceptID   uint    `json:"concept_id"`
	LectureID   uint    `json:"lecture_id"`
	CourseID    uint    `json:"course_id"`
	Name        string  `json:"concept_name"`
	Description string  `json:"concept_description"`
	Score       float64 `json:"score"`
}
