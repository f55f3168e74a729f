// Package pipeline 定义了讲义到概念的处理流程。
package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"super-feynman-go/internal/gateway"
	"super-feynman-go/internal/model"
	"super-feynman-go/internal/repository"
	"super-feynman-go/pkg/embedding"
	"super-feynman-go/pkg/es"
	"super-feynman-go/pkg/log"
)

// indexConcurrency 是并发写入检索索引的上限。
const indexConcurrency = 4

// ConceptExtractor 调用模型抽取概念、入库，并尽力写入检索索引。
type ConceptExtractor struct {
	llm         gateway.LLMGateway
	conceptRepo repository.ConceptRepository
	// index 与 embedder 均可为 nil，表示未启用。
	index    es.ConceptIndex
	embedder embedding.Client
}

// NewConceptExtractor 创建一个新的 ConceptExtractor 实例。
func NewConceptExtractor(llm gateway.LLMGateway, conceptRepo repository.ConceptRepository, index es.ConceptIndex, embedder embedding.Client) *ConceptExtractor {
	return &ConceptExtractor{
		llm:         llm,
		conceptRepo: conceptRepo,
		index:       index,
		embedder:    embedder,
	}
}

// ExtractAndPersist 从讲义正文抽取概念并保存，返回按 id 升序的概念列表。
func (e *ConceptExtractor) ExtractAndPersist(ctx context.Context, lecture *model.Lecture) ([]model.Concept, error) {
	log.Infof("[ConceptExtractor] 开始抽取概念, LectureID: %d, 内容长度: %d", lecture.ID, len(lecture.FileContent))

	extracted, err := e.llm.ExtractConcepts(ctx, lecture.FileContent)
	if err != nil {
		log.Errorf("[ConceptExtractor] 模型抽取概念失败, LectureID: %d, Error: %v", lecture.ID, err)
		return nil, err
	}
	if len(extracted) == 0 {
		log.Warnf("[ConceptExtractor] 模型未返回任何概念, LectureID: %d", lecture.ID)
		return []model.Concept{}, nil
	}

	concepts, err := e.conceptRepo.CreateBatch(ctx, lecture.ID, extracted)
	if err != nil {
		log.Errorf("[ConceptExtractor] 保存概念失败, LectureID: %d, Error: %v", lecture.ID, err)
		return nil, fmt.Errorf("保存概念失败: %w", err)
	}
	log.Infof("[ConceptExtractor] 成功保存 %d 个概念, LectureID: %d", len(concepts), lecture.ID)

	// 索引失败不影响主流程
	if err := e.indexConcepts(ctx, lecture, concepts); err != nil {
		log.Warnf("[ConceptExtractor] 概念索引失败, LectureID: %d, Error: %v", lecture.ID, err)
	}
	return concepts, nil
}

func (e *ConceptExtractor) indexConcepts(ctx context.Context, lecture *model.Lecture, concepts []model.Concept) error {
	if e.index == nil {
		return nil
	}

	var vectors [][]float32
	if e.embedder != nil {
		texts := make([]string, len(concepts))
		for i, c := range concepts {
			texts[i] = c.ConceptName + ": " + c.ConceptDescription
		}
		v, err := e.embedder.CreateEmbeddings(ctx, texts)
		if err != nil {
			// 向量化失败时退化为纯文本索引
			log.Warnf("[ConceptExtractor] 概念向量化失败, 仅写入文本索引: %v", err)
		} else {
			vectors = v
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(indexConcurrency)
	for i, c := range concepts {
		doc := model.ConceptDocument{
			ConceptID:   c.ID,
			LectureID:   lecture.ID,
			CourseID:    lecture.CourseID,
			Name:        c.ConceptName,
			Description: c.ConceptDescription,
		}
		if i < len(vectors) {
			doc.Vector = vectors[i]
		}
		g.Go(func() error {
			return e.index.IndexConcept(gctx, doc)
		})
	}
	return g.Wait()
}
