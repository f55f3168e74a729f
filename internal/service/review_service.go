package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"super-feynman-go/internal/gateway"
	"super-feynman-go/internal/model"
	"super-feynman-go/internal/repository"
	"super-feynman-go/pkg/apperr"
	"super-feynman-go/pkg/lock"
	"super-feynman-go/pkg/log"
)

// TurnResult 是一次学习者发言后的结果。
type TurnResult struct {
	Session *model.ReviewSession
	Reply   string
}

// EndResult 是结束会话后的反馈与掌握程度变化。
type EndResult struct {
	Feedback  *model.FeedbackResult `json:"feedback"`
	OldStatus model.ProgressStatus  `json:"old_status"`
	NewStatus model.ProgressStatus  `json:"new_status"`
}

// ReviewService 驱动复习会话的状态机：created → active → ended。
type ReviewService interface {
	StartSession(ctx context.Context, conceptID uint, audience string) (*model.ReviewSession, string, error)
	SendMessage(ctx context.Context, sessionID uint, text string) (*TurnResult, error)
	EndSession(ctx context.Context, sessionID uint) (*EndResult, error)
	GetSession(ctx context.Context, sessionID uint) (*model.ReviewSession, error)
}

// ReviewOption 调整 ReviewService 的行为。
type ReviewOption func(*reviewService)

// WithClock 替换当前时间来源。
func WithClock(now func() time.Time) ReviewOption {
	return func(s *reviewService) { s.now = now }
}

// WithMaxTurns 设置学习者最多发言次数，0 表示不限制。
func WithMaxTurns(n int) ReviewOption {
	return func(s *reviewService) { s.maxTurns = n }
}

type reviewService struct {
	llm         gateway.LLMGateway
	conceptRepo repository.ConceptRepository
	sessionRepo repository.ReviewSessionRepository
	locker      lock.Locker
	maxTurns    int
	now         func() time.Time
}

// NewReviewService 创建一个新的 ReviewService 实例。
func NewReviewService(llm gateway.LLMGateway, conceptRepo repository.ConceptRepository, sessionRepo repository.ReviewSessionRepository, locker lock.Locker, opts ...ReviewOption) ReviewService {
	s := &reviewService{
		llm:         llm,
		conceptRepo: conceptRepo,
		sessionRepo: sessionRepo,
		locker:      locker,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// withSessionLock 持有会话锁执行 fn，同一会话的操作依次进行。
func (s *reviewService) withSessionLock(ctx context.Context, sessionID uint, fn func() error) error {
	unlock, err := s.locker.Lock(ctx, fmt.Sprintf("review:session:%d", sessionID))
	if err != nil {
		if errors.Is(err, lock.ErrLockTimeout) {
			return fmt.Errorf("%w: review session %d is busy", apperr.ErrInvalidState, sessionID)
		}
		return err
	}
	defer unlock()
	return fn()
}

func (s *reviewService) StartSession(ctx context.Context, conceptID uint, audience string) (*model.ReviewSession, string, error) {
	level, ok := model.ParseAudienceLevel(audience)
	if !ok {
		return nil, "", fmt.Errorf("%w: audience level must be one of classmate, middleschooler, kid", apperr.ErrInvalidInput)
	}
	concept, err := s.conceptRepo.FindByID(ctx, conceptID)
	if err != nil {
		return nil, "", err
	}

	session := &model.ReviewSession{
		ConceptID:     concept.ID,
		AudienceLevel: level,
		State:         model.SessionCreated,
	}
	opener, err := s.llm.OpenSession(ctx, concept.ConceptName, concept.ConceptDescription, level)
	if err != nil {
		log.Errorf("[ReviewService.StartSession] 生成开场白失败, conceptID: %d, error: %v", conceptID, err)
		return nil, "", err
	}

	session.State = model.SessionActive
	session.History = model.History{{Role: model.RoleAssistant, Content: opener}}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		log.Errorf("[ReviewService.StartSession] 保存会话失败, conceptID: %d, error: %v", conceptID, err)
		return nil, "", err
	}
	log.Infof("[ReviewService.StartSession] 会话已开始, sessionID: %d, concept: %s, audience: %s", session.ID, concept.ConceptName, level)
	return session, opener, nil
}

func (s *reviewService) SendMessage(ctx context.Context, sessionID uint, text string) (*TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: message must not be empty", apperr.ErrInvalidInput)
	}

	var result *TurnResult
	err := s.withSessionLock(ctx, sessionID, func() error {
		session, err := s.activeSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if s.maxTurns > 0 && session.History.UserTurns() >= s.maxTurns {
			return fmt.Errorf("%w: review session %d reached the limit of %d messages, end it to get feedback",
				apperr.ErrInvalidState, sessionID, s.maxTurns)
		}
		concept, err := s.conceptRepo.FindByID(ctx, session.ConceptID)
		if err != nil {
			return err
		}

		userMsg := model.Message{Role: model.RoleUser, Content: text}
		history := make([]model.Message, 0, len(session.History)+1)
		history = append(history, session.History...)
		history = append(history, userMsg)

		reply, err := s.llm.ContinueSession(ctx, history, concept.ConceptName, concept.ConceptDescription, session.AudienceLevel)
		if err != nil {
			log.Errorf("[ReviewService.SendMessage] 生成回复失败, sessionID: %d, error: %v", sessionID, err)
			return err
		}

		updated, err := s.sessionRepo.AppendHistory(ctx, sessionID, userMsg, model.Message{Role: model.RoleAssistant, Content: reply})
		if err != nil {
			return err
		}
		log.Infof("[ReviewService.SendMessage] 会话 %d 第 %d 轮完成", sessionID, updated.History.UserTurns())
		result = &TurnResult{Session: updated, Reply: reply}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *reviewService) EndSession(ctx context.Context, sessionID uint) (*EndResult, error) {
	var result *EndResult
	err := s.withSessionLock(ctx, sessionID, func() error {
		session, err := s.activeSession(ctx, sessionID)
		if err != nil {
			return err
		}
		concept, err := s.conceptRepo.FindByID(ctx, session.ConceptID)
		if err != nil {
			return err
		}

		feedback, err := s.llm.AnalyzeFeedback(ctx, session.History, concept.ConceptName, concept.ConceptDescription, session.AudienceLevel)
		if err != nil {
			log.Errorf("[ReviewService.EndSession] 生成反馈失败, sessionID: %d, error: %v", sessionID, err)
			return err
		}

		oldStatus := concept.ProgressStatus
		newStatus := model.NextStatus(oldStatus)
		if err := s.sessionRepo.Complete(ctx, sessionID, concept.ID, newStatus, feedback, s.now()); err != nil {
			log.Errorf("[ReviewService.EndSession] 保存复习结果失败, sessionID: %d, error: %v", sessionID, err)
			return err
		}
		log.Infof("[ReviewService.EndSession] 会话 %d 已结束, 概念 %d: %s -> %s", sessionID, concept.ID, oldStatus, newStatus)
		result = &EndResult{Feedback: feedback, OldStatus: oldStatus, NewStatus: newStatus}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *reviewService) GetSession(ctx context.Context, sessionID uint) (*model.ReviewSession, error) {
	return s.sessionRepo.FindByID(ctx, sessionID)
}

func (s *reviewService) activeSession(ctx context.Context, sessionID uint) (*model.ReviewSession, error) {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.State != model.SessionActive {
		return nil, fmt.Errorf("%w: review session %d is %s", apperr.ErrInvalidState, sessionID, session.State)
	}
	return session, nil
}
