package model

import (
	"fmt"
	"strings"
	"time"

	"super-feynman-go/pkg/apperr"
	"super-feynman-go/pkg/log"
)

// ProgressStatus 是概念的掌握程度。
type ProgressStatus string

const (
	StatusNotStarted ProgressStatus = "Not Started"
	StatusReviewing  ProgressStatus = "Reviewing"
	StatusUnderstood ProgressStatus = "Understood"
	StatusMastered   ProgressStatus = "Mastered"
)

// Concept 是从讲义中抽取出的一个可复习的知识点。
type Concept struct {
	ID                 uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	LectureID          uint           `gorm:"not null;index" json:"lecture_id"`
	Lecture            *Lecture       `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	ConceptName        string         `gorm:"type:varchar(255);not null" json:"concept_name"`
	ConceptDescription string         `gorm:"type:text;not null" json:"concept_description"`
	ProgressStatus     ProgressStatus `gorm:"type:varchar(32);not null" json:"progress_status"`
	LastReviewed       *time.Time     `gorm:"default:null" json:"last_reviewed"`
	CreatedAt          time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Concept) TableName() string {
	return "concepts"
}

// ExtractedConcept 是模型从笔记中抽取出的候选概念，尚未入库。
type ExtractedConcept struct {
	Name        string `json:"concept_name"`
	Description string `json:"concept_description"`
}

// NextStatus 返回一次复习结束后的掌握程度。
// 只前进不后退，Mastered 封顶；无法识别的值按 Reviewing 处理并记录告警。
func NextStatus(current ProgressStatus) ProgressStatus {
	switch current {
	case StatusNotStarted:
		return StatusReviewing
	case StatusReviewing:
		return StatusUnderstood
	case StatusUnderstood, StatusMastered:
		return StatusMastered
	default:
		log.Warnf("[NextStatus] 未知的掌握程度 %q, 按 %q 处理", current, StatusReviewing)
		return StatusReviewing
	}
}

// ParseProgressStatus 校验客户端传入的掌握程度。
func ParseProgressStatus(s string) (ProgressStatus, error) {
	switch st := ProgressStatus(strings.TrimSpace(s)); st {
	case StatusNotStarted, StatusReviewing, StatusUnderstood, StatusMastered:
		return st, nil
	default:
		return "", fmt.Errorf("%w: progress status must be one of %q, %q, %q, %q",
			apperr.ErrInvalidInput, StatusNotStarted, StatusReviewing, StatusUnderstood, StatusMastered)
	}
}
