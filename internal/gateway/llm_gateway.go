// Package gateway 封装对外部大模型与语音转写服务的调用：重试、解析与错误归类。
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"super-feynman-go/internal/model"
	"super-feynman-go/internal/prompt"
	"super-feynman-go/pkg/apperr"
	"super-feynman-go/pkg/llm"
	"super-feynman-go/pkg/log"
	"super-feynman-go/pkg/retry"
)

const (
	minConcepts = 5
	maxConcepts = 15
)

// LLMGateway 是业务层使用大模型的唯一入口。
type LLMGateway interface {
	ExtractConcepts(ctx context.Context, noteText string) ([]model.ExtractedConcept, error)
	OpenSession(ctx context.Context, conceptName, conceptDescription string, audience model.AudienceLevel) (string, error)
	ContinueSession(ctx context.Context, history []model.Message, conceptName, conceptDescription string, audience model.AudienceLevel) (string, error)
	AnalyzeFeedback(ctx context.Context, history []model.Message, conceptName, conceptDescription string, audience model.AudienceLevel) (*model.FeedbackResult, error)
}

type llmGateway struct {
	client llm.Client
	policy retry.Policy
}

// NewLLMGateway 创建一个新的 LLMGateway 实例。
func NewLLMGateway(client llm.Client, policy retry.Policy) LLMGateway {
	return &llmGateway{client: client, policy: policy}
}

func (g *llmGateway) chat(ctx context.Context, op string, messages []llm.Message) (string, error) {
	out, err := retry.Do(ctx, g.policy, isRetryableLLM, func(ctx context.Context) (string, error) {
		return g.client.Chat(ctx, messages, nil)
	})
	if err != nil {
		log.Errorf("[LLMGateway.%s] 调用大模型失败: %v", op, err)
		return "", translateLLMError(op, err)
	}
	return out, nil
}

// isRetryableLLM 在默认分类之外，把无法解析的响应视为不可重试。
func isRetryableLLM(err error) bool {
	if errors.Is(err, llm.ErrMalformedResponse) {
		return false
	}
	return retry.IsRetryable(err)
}

// translateLLMError 将传输层错误归类为业务错误，provider 的原始响应体不向上暴露。
func translateLLMError(op string, err error) error {
	var se *llm.StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: %s: status %d", apperr.ErrInvalidCredentials, op, se.StatusCode)
		case se.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s: retries exhausted", apperr.ErrRateLimited, op)
		default:
			return fmt.Errorf("%w: %s: status %d", apperr.ErrProviderCallFailed, op, se.StatusCode)
		}
	}
	if errors.Is(err, llm.ErrMalformedResponse) {
		return fmt.Errorf("%w: %s: %v", apperr.ErrMalformedProviderResponse, op, err)
	}
	return fmt.Errorf("%w: %s: %v", apperr.ErrProviderCallFailed, op, err)
}

func toLLMMessages(history []model.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// ExtractConcepts 从讲义文本中抽取概念。
func (g *llmGateway) ExtractConcepts(ctx context.Context, noteText string) ([]model.ExtractedConcept, error) {
	if strings.TrimSpace(noteText) == "" {
		return nil, fmt.Errorf("%w: note text is empty", apperr.ErrInvalidInput)
	}
	log.Infof("[LLMGateway.ExtractConcepts] 开始抽取概念, 笔记长度: %d", len(noteText))

	raw, err := g.chat(ctx, "ExtractConcepts", []llm.Message{
		{Role: model.RoleUser, Content: prompt.RenderExtractionPrompt(noteText)},
	})
	if err != nil {
		return nil, err
	}

	var items []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &items); err != nil {
		log.Warnf("[LLMGateway.ExtractConcepts] 模型返回的不是 JSON 数组: %v", err)
		return nil, fmt.Errorf("%w: concept list is not a JSON array", apperr.ErrMalformedProviderResponse)
	}

	concepts := make([]model.ExtractedConcept, 0, len(items))
	for _, item := range items {
		name := stringify(item["concept_name"])
		desc := stringify(item["concept_description"])
		if name == "" || desc == "" {
			continue
		}
		concepts = append(concepts, model.ExtractedConcept{Name: name, Description: desc})
	}

	if len(concepts) < minConcepts || len(concepts) > maxConcepts {
		log.Warnf("[LLMGateway.ExtractConcepts] 概念数量 %d 不在 [%d, %d] 范围内", len(concepts), minConcepts, maxConcepts)
	}
	log.Infof("[LLMGateway.ExtractConcepts] 抽取完成, 原始 %d 条, 有效 %d 条", len(items), len(concepts))
	return concepts, nil
}

// OpenSession 让模型以指定听众身份提出第一个问题。
func (g *llmGateway) OpenSession(ctx context.Context, conceptName, conceptDescription string, audience model.AudienceLevel) (string, error) {
	system, err := prompt.RenderSystemPrompt(conceptName, conceptDescription, audience)
	if err != nil {
		return "", err
	}
	reply, err := g.chat(ctx, "OpenSession", []llm.Message{
		{Role: "system", Content: system},
		{Role: model.RoleUser, Content: prompt.OpeningInstruction},
	})
	if err != nil {
		return "", err
	}
	return nonEmptyReply("OpenSession", reply)
}

// ContinueSession 基于完整历史生成下一条回复，history 的最后一条应为学习者发言。
func (g *llmGateway) ContinueSession(ctx context.Context, history []model.Message, conceptName, conceptDescription string, audience model.AudienceLevel) (string, error) {
	if len(history) == 0 {
		return "", fmt.Errorf("%w: history is empty", apperr.ErrInvalidInput)
	}
	system, err := prompt.RenderSystemPrompt(conceptName, conceptDescription, audience)
	if err != nil {
		return "", err
	}
	messages := append([]llm.Message{{Role: "system", Content: system}}, toLLMMessages(history)...)
	reply, err := g.chat(ctx, "ContinueSession", messages)
	if err != nil {
		return "", err
	}
	return nonEmptyReply("ContinueSession", reply)
}

func nonEmptyReply(op, reply string) (string, error) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("%w: %s: empty reply", apperr.ErrMalformedProviderResponse, op)
	}
	return reply, nil
}

// AnalyzeFeedback 对整段会话做结构化评估。
func (g *llmGateway) AnalyzeFeedback(ctx context.Context, history []model.Message, conceptName, conceptDescription string, audience model.AudienceLevel) (*model.FeedbackResult, error) {
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: history is empty", apperr.ErrInvalidInput)
	}
	log.Infof("[LLMGateway.AnalyzeFeedback] 开始分析会话, 概念: %s, 消息数: %d", conceptName, len(history))

	raw, err := g.chat(ctx, "AnalyzeFeedback", []llm.Message{
		{Role: model.RoleUser, Content: prompt.RenderFeedbackPrompt(conceptName, conceptDescription, audience, history)},
	})
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &fields); err != nil || fields == nil {
		log.Warnf("[LLMGateway.AnalyzeFeedback] 模型返回的不是 JSON 对象: %v", err)
		return nil, fmt.Errorf("%w: feedback is not a JSON object", apperr.ErrMalformedProviderResponse)
	}

	var overall string
	if err := json.Unmarshal(fields["overall_quality"], &overall); err != nil || strings.TrimSpace(overall) == "" {
		return nil, fmt.Errorf("%w: feedback is missing overall_quality", apperr.ErrMalformedProviderResponse)
	}

	return &model.FeedbackResult{
		OverallQuality: strings.TrimSpace(overall),
		ClearParts:     stringList(fields["clear_parts"]),
		UnclearParts:   stringList(fields["unclear_parts"]),
		JargonUsed:     stringList(fields["jargon_used"]),
		StruggledWith:  stringList(fields["struggled_with"]),
	}, nil
}
