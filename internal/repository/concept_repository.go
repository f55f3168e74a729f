package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"super-feynman-go/internal/model"
	"super-feynman-go/pkg/apperr"
)

// ConceptRepository 接口定义了概念的持久化操作。
type ConceptRepository interface {
	// CreateBatch 在一个事务内为讲义写入一批概念，按插入顺序返回。
	CreateBatch(ctx context.Context, lectureID uint, concepts []model.ExtractedConcept) ([]model.Concept, error)
	FindByID(ctx context.Context, id uint) (*model.Concept, error)
	ListByLecture(ctx context.Context, lectureID uint) ([]model.Concept, error)
	CountByLecture(ctx context.Context, lectureID uint) (int64, error)
	UpdateProgress(ctx context.Context, id uint, status model.ProgressStatus, reviewedAt time.Time) (*model.Concept, error)
	Delete(ctx context.Context, id uint) error
	// SearchByKeyword 是未启用 Elasticsearch 时的检索兜底。
	SearchByKeyword(ctx context.Context, keyword string, limit int) ([]model.ConceptSearchHit, error)
}

type conceptRepository struct {
	db *gorm.DB
}

// NewConceptRepository 创建一个新的 ConceptRepository 实例。
func NewConceptRepository(db *gorm.DB) ConceptRepository {
	return &conceptRepository{db: db}
}

func (r *conceptRepository) CreateBatch(ctx context.Context, lectureID uint, concepts []model.ExtractedConcept) ([]model.Concept, error) {
	rows := make([]model.Concept, 0, len(concepts))
	for _, c := range concepts {
		rows = append(rows, model.Concept{
			LectureID:          lectureID,
			ConceptName:        c.Name,
			ConceptDescription: c.Description,
			ProgressStatus:     model.StatusNotStarted,
		})
	}
	if len(rows) == 0 {
		return rows, nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *conceptRepository) FindByID(ctx context.Context, id uint) (*model.Concept, error) {
	var concept model.Concept
	if err := r.db.WithContext(ctx).First(&concept, id).Error; err != nil {
		return nil, wrapNotFound(err, "concept", id)
	}
	return &concept, nil
}

// ListByLecture 按最近复习时间倒序返回，从未复习过的排在最后。
func (r *conceptRepository) ListByLecture(ctx context.Context, lectureID uint) ([]model.Concept, error) {
	concepts := []model.Concept{}
	err := r.db.WithContext(ctx).
		Where("lecture_id = ?", lectureID).
		Order("CASE WHEN last_reviewed IS NULL THEN 1 ELSE 0 END").
		Order("last_reviewed DESC").
		Order("id ASC").
		Find(&concepts).Error
	return concepts, err
}

func (r *conceptRepository) CountByLecture(ctx context.Context, lectureID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Concept{}).Where("lecture_id = ?", lectureID).Count(&n).Error
	return n, err
}

func (r *conceptRepository) UpdateProgress(ctx context.Context, id uint, status model.ProgressStatus, reviewedAt time.Time) (*model.Concept, error) {
	var concept model.Concept
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&concept, id).Error; err != nil {
			return wrapNotFound(err, "concept", id)
		}
		concept.ProgressStatus = status
		concept.LastReviewed = &reviewedAt
		return tx.Model(&model.Concept{}).Where("id = ?", id).Updates(map[string]interface{}{
			"progress_status": status,
			"last_reviewed":   reviewedAt,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &concept, nil
}

func (r *conceptRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&model.Concept{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("concept %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (r *conceptRepository) SearchByKeyword(ctx context.Context, keyword string, limit int) ([]model.ConceptSearchHit, error) {
	pattern := "%" + escapeLike(strings.ToLower(keyword)) + "%"
	hits := []model.ConceptSearchHit{}
	err := r.db.WithContext(ctx).
		Table("concepts").
		Select("concepts.id AS concept_id, concepts.lecture_id, lectures.course_id, "+
			"concepts.concept_name AS name, concepts.concept_description AS description, 1 AS score").
		Joins("JOIN lectures ON lectures.id = concepts.lecture_id").
		Where("LOWER(concepts.concept_name) LIKE ? ESCAPE '!' OR LOWER(concepts.concept_description) LIKE ? ESCAPE '!'", pattern, pattern).
		Order("concepts.id ASC").
		Limit(limit).
		Scan(&hits).Error
	return hits, err
}

func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}
