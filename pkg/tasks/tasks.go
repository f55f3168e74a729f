// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import "time"

// ConceptExtractionTask asks the consumer to (re)extract concepts for a lecture
// whose synchronous extraction failed or was explicitly requested again.
type ConceptExtractionTask struct {
	LectureID  uint      `json:"lecture_id"`
	CourseID   uint      `json:"course_id"`
	Reason     string    `json:"reason"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
