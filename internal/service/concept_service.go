package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"super-feynman-go/internal/model"
	"super-feynman-go/internal/repository"
	"super-feynman-go/pkg/apperr"
	"super-feynman-go/pkg/embedding"
	"super-feynman-go/pkg/es"
	"super-feynman-go/pkg/log"
)

const (
	defaultSearchSize = 10
	maxSearchSize     = 50
)

// ConceptService 接口定义了概念相关的业务操作。
type ConceptService interface {
	ListByLecture(ctx context.Context, lectureID uint) ([]model.Concept, error)
	UpdateProgress(ctx context.Context, id uint, status string) (*model.Concept, error)
	Delete(ctx context.Context, id uint) error
	Search(ctx context.Context, query string, size int) ([]model.ConceptSearchHit, error)
}

type conceptService struct {
	conceptRepo repository.ConceptRepository
	index       es.ConceptIndex
	embedder    embedding.Client
	now         func() time.Time
}

// NewConceptService 创建一个新的 ConceptService 实例。index 与 embedder 可为 nil。
func NewConceptService(conceptRepo repository.ConceptRepository, index es.ConceptIndex, embedder embedding.Client) ConceptService {
	return &conceptService{
		conceptRepo: conceptRepo,
		index:       index,
		embedder:    embedder,
		now:         time.Now,
	}
}

func (s *conceptService) ListByLecture(ctx context.Context, lectureID uint) ([]model.Concept, error) {
	return s.conceptRepo.ListByLecture(ctx, lectureID)
}

// UpdateProgress 手动设置掌握程度，同时刷新 last_reviewed。
func (s *conceptService) UpdateProgress(ctx context.Context, id uint, status string) (*model.Concept, error) {
	st, err := model.ParseProgressStatus(status)
	if err != nil {
		return nil, err
	}
	concept, err := s.conceptRepo.UpdateProgress(ctx, id, st, s.now())
	if err != nil {
		return nil, err
	}
	log.Infof("[ConceptService.UpdateProgress] 概念 %d 掌握程度更新为 %s", id, st)
	return concept, nil
}

func (s *conceptService) Delete(ctx context.Context, id uint) error {
	if err := s.conceptRepo.Delete(ctx, id); err != nil {
		return err
	}
	if s.index != nil {
		if err := s.index.DeleteConcept(ctx, id); err != nil {
			log.Warnf("[ConceptService.Delete] 删除概念索引失败, conceptID: %d, error: %v", id, err)
		}
	}
	return nil
}

// Search 优先使用 Elasticsearch（有向量时做混合检索），不可用时退化为数据库模糊匹配。
func (s *conceptService) Search(ctx context.Context, query string, size int) ([]model.ConceptSearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: search query is required", apperr.ErrInvalidInput)
	}
	if size <= 0 {
		size = defaultSearchSize
	}
	if size > maxSearchSize {
		size = maxSearchSize
	}

	if s.index != nil {
		var vector []float32
		if s.embedder != nil {
			vectors, err := s.embedder.CreateEmbeddings(ctx, []string{query})
			if err != nil {
				log.Warnf("[ConceptService.Search] 查询向量化失败, 仅使用关键词检索: %v", err)
			} else if len(vectors) == 1 {
				vector = vectors[0]
			}
		}
		hits, err := s.index.Search(ctx, query, vector, size)
		if err == nil {
			return hits, nil
		}
		log.Warnf("[ConceptService.Search] Elasticsearch 检索失败, 回退到数据库: %v", err)
	}
	return s.conceptRepo.SearchByKeyword(ctx, query, size)
}
