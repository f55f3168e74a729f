package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"super-feynman-go/internal/model"
	"super-feynman-go/pkg/apperr"
)

// ReviewSessionRepository 接口定义了复习会话的持久化操作。
type ReviewSessionRepository interface {
	Create(ctx context.Context, session *model.ReviewSession) error
	FindByID(ctx context.Context, id uint) (*model.ReviewSession, error)
	// AppendHistory 原子地在会话末尾追加消息，会话不处于 active 时返回 ErrInvalidState。
	AppendHistory(ctx context.Context, id uint, messages ...model.Message) (*model.ReviewSession, error)
	// Complete 在一个事务内更新概念掌握程度、保存反馈并结束会话。
	Complete(ctx context.Context, id uint, conceptID uint, status model.ProgressStatus, feedback *model.FeedbackResult, reviewedAt time.Time) error
}

type reviewSessionRepository struct {
	db *gorm.DB
}

// NewReviewSessionRepository 创建一个新的 ReviewSessionRepository 实例。
func NewReviewSessionRepository(db *gorm.DB) ReviewSessionRepository {
	return &reviewSessionRepository{db: db}
}

func (r *reviewSessionRepository) Create(ctx context.Context, session *model.ReviewSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *reviewSessionRepository) FindByID(ctx context.Context, id uint) (*model.ReviewSession, error) {
	var session model.ReviewSession
	if err := r.db.WithContext(ctx).First(&session, id).Error; err != nil {
		return nil, wrapNotFound(err, "review session", id)
	}
	return &session, nil
}

func (r *reviewSessionRepository) AppendHistory(ctx context.Context, id uint, messages ...model.Message) (*model.ReviewSession, error) {
	var session model.ReviewSession
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&session, id).Error; err != nil {
			return wrapNotFound(err, "review session", id)
		}
		if session.State != model.SessionActive {
			return fmt.Errorf("%w: review session %d is %s", apperr.ErrInvalidState, id, session.State)
		}
		session.History = append(session.History, messages...)
		res := tx.Model(&model.ReviewSession{}).
			Where("id = ? AND state = ?", id, model.SessionActive).
			Updates(map[string]interface{}{"history": session.History, "updated_at": time.Now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: review session %d is no longer active", apperr.ErrInvalidState, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// forUpdate 对读取的行加 SELECT ... FOR UPDATE 锁。sqlite 不支持行锁，写事务本身已串行。
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (r *reviewSessionRepository) Complete(ctx context.Context, id uint, conceptID uint, status model.ProgressStatus, feedback *model.FeedbackResult, reviewedAt time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var concept model.Concept
		if err := tx.Select("id").First(&concept, conceptID).Error; err != nil {
			return wrapNotFound(err, "concept", conceptID)
		}
		if err := tx.Model(&model.Concept{}).Where("id = ?", conceptID).Updates(map[string]interface{}{
			"progress_status": status,
			"last_reviewed":   reviewedAt,
		}).Error; err != nil {
			return err
		}

		res := tx.Model(&model.ReviewSession{}).
			Where("id = ? AND state = ?", id, model.SessionActive).
			Updates(map[string]interface{}{
				"state":      model.SessionEnded,
				"feedback":   feedback,
				"updated_at": reviewedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: review session %d is not active", apperr.ErrInvalidState, id)
		}
		return nil
	})
}
