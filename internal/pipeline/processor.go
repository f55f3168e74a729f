package pipeline

import (
	"context"
	"errors"
	"fmt"

	"super-feynman-go/internal/repository"
	"super-feynman-go/pkg/apperr"
	"super-feynman-go/pkg/log"
	"super-feynman-go/pkg/tasks"
)

// Processor 处理从 Kafka 收到的概念抽取重试任务。
type Processor struct {
	lectureRepo repository.LectureRepository
	conceptRepo repository.ConceptRepository
	extractor   *ConceptExtractor
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(lectureRepo repository.LectureRepository, conceptRepo repository.ConceptRepository, extractor *ConceptExtractor) *Processor {
	return &Processor{
		lectureRepo: lectureRepo,
		conceptRepo: conceptRepo,
		extractor:   extractor,
	}
}

// Process 为尚无概念的讲义重新抽取概念。讲义已被删除或已有概念时直接跳过。
func (p *Processor) Process(ctx context.Context, task tasks.ConceptExtractionTask) error {
	log.Infof("[Processor] 开始处理抽取任务, LectureID: %d, Reason: %s", task.LectureID, task.Reason)

	lecture, err := p.lectureRepo.FindByID(ctx, task.LectureID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			log.Warnf("[Processor] 讲义已不存在, 跳过任务, LectureID: %d", task.LectureID)
			return nil
		}
		return fmt.Errorf("查询讲义失败: %w", err)
	}

	count, err := p.conceptRepo.CountByLecture(ctx, lecture.ID)
	if err != nil {
		return fmt.Errorf("统计概念数量失败: %w", err)
	}
	if count > 0 {
		log.Infof("[Processor] 讲义已有 %d 个概念, 跳过任务, LectureID: %d", count, lecture.ID)
		return nil
	}

	concepts, err := p.extractor.ExtractAndPersist(ctx, lecture)
	if err != nil {
		return err
	}
	log.Infof("[Processor] 抽取任务完成, LectureID: %d, 概念数: %d", lecture.ID, len(concepts))
	return nil
}
