package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// AudienceLevel 是学习者讲解的对象，决定 AI 扮演的角色与回复长度。
type AudienceLevel string

const (
	AudienceClassmate      AudienceLevel = "classmate"
	AudienceMiddleSchooler AudienceLevel = "middleschooler"
	AudienceKid            AudienceLevel = "kid"
)

// ParseAudienceLevel 校验客户端传入的听众类型。
func ParseAudienceLevel(s string) (AudienceLevel, bool) {
	switch a := AudienceLevel(strings.TrimSpace(s)); a {
	case AudienceClassmate, AudienceMiddleSchooler, AudienceKid:
		return a, true
	default:
		return "", false
	}
}

// SessionState 是复习会话的生命周期状态。created 只存在于内存中，入库时即为 active。
type SessionState string

const (
	SessionCreated SessionState = "created"
	SessionActive  SessionState = "active"
	SessionEnded   SessionState = "ended"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message 是会话中的一条发言。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ErrCorruptHistory 表示数据库中保存的会话历史无法解析。
var ErrCorruptHistory = errors.New("corrupt conversation history")

// History 是按时间顺序追加的会话记录，以 JSON 形式存放在一列中。
type History []Message

// UserTurns 返回学习者已发言的次数。
func (h History) UserTurns() int {
	n := 0
	for _, m := range h {
		if m.Role == RoleUser {
			n++
		}
	}
	return n
}

// Value 实现 driver.Valuer。
func (h History) Value() (driver.Value, error) {
	if h == nil {
		h = History{}
	}
	b, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan 实现 sql.Scanner。
func (h *History) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*h = History{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("%w: unsupported column type %T", ErrCorruptHistory, src)
	}
	var out History
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptHistory, err)
	}
	*h = out
	return nil
}

// FeedbackResult 是会话结束时模型给出的结构化反馈。
type FeedbackResult struct {
	OverallQuality string   `json:"overall_quality"`
	ClearParts     []string `json:"clear_parts"`
	UnclearParts   []string `json:"unclear_parts"`
	JargonUsed     []string `json:"jargon_used"`
	StruggledWith  []string `json:"struggled_with"`
}

// Value 实现 driver.Valuer。
func (f FeedbackResult) Value() (driver.Value, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan 实现 sql.Scanner。
func (f *FeedbackResult) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, f)
	case string:
		return json.Unmarshal([]byte(v), f)
	default:
		return fmt.Errorf("unsupported feedback column type %T", src)
	}
}

// ReviewSession 是一次针对某个概念、面向某类听众的讲解练习。
type ReviewSession struct {
	ID            uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	ConceptID     uint            `gorm:"not null;index" json:"concept_id"`
	Concept       *Concept        `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	AudienceLevel AudienceLevel   `gorm:"type:varchar(32);not null" json:"audience_level"`
	State         SessionState    `gorm:"type:varchar(16);not null" json:"state"`
	History       History         `gorm:"type:longtext;not null" json:"history"`
	Feedback      *FeedbackResult `gorm:"type:text" json:"feedback,omitempty"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ReviewSession) TableName() string {
	return "review_sessions"
}
