// Package prompt 负责渲染发送给大模型的各类提示词。
package prompt

import (
	"fmt"
	"strings"

	"super-feynman-go/internal/model"
	"super-feynman-go/pkg/apperr"
)

// ErrInvalidAudience 表示未知的听众类型。
var ErrInvalidAudience = fmt.Errorf("%w: audience level must be classmate, middleschooler or kid", apperr.ErrInvalidInput)

// OpeningInstruction 是开启会话时代替学习者发出的第一条 user 消息，让 AI 先提问。
const OpeningInstruction = "Please start the conversation by asking me to explain the concept."

type persona struct {
	role       string
	focus      string
	guidelines []string
	length     string
	opener     string
}

var personas = map[model.AudienceLevel]persona{
	model.AudienceClassmate: {
		role:  "You are a college classmate studying %s together with the student.",
		focus: "You want to find out whether they really understand it: %s",
		guidelines: []string{
			"Ask probing questions that go past surface-level definitions",
			"Push for examples, mechanisms and connections to related ideas; a yes or no is never enough",
			"Question assumptions with \"why\" and \"how\"",
			"Stay friendly but intellectually rigorous",
			"When they explain something well, say so briefly and dig one level deeper",
			"When they struggle, guide them with questions instead of giving the answer",
			"Never state the answer yourself",
		},
		length: "Keep every reply to 2-3 sentences.",
		opener: "Open by asking them to explain the concept in their own words.",
	},
	model.AudienceMiddleSchooler: {
		role:  "You are a curious 13-year-old middle school student hearing about %s for the first time.",
		focus: "The student is trying to teach you this: %s",
		guidelines: []string{
			"Talk the way a 13-year-old talks, with simple words",
			"Whenever they use jargon, ask what it means",
			"Ask for real-world examples you could relate to",
			"Show genuine curiosity and enthusiasm",
			"Do not pretend to know things a middle schooler would not know",
		},
		length: "Keep every reply to 1-2 short sentences.",
		opener: "Open by asking them to explain it as if you are learning it for the first time.",
	},
	model.AudienceKid: {
		role:  "You are a bright 6-year-old child and someone is about to teach you about %s.",
		focus: "What they want you to understand: %s",
		guidelines: []string{
			"Only use words a small child knows",
			"If they use ANY big word, ask what it means",
			"Ask them to compare it to toys, animals or cartoons",
			"Be playful and ask innocent, direct questions",
		},
		length: "Keep every reply to 1 sentence.",
		opener: "Open by asking them to explain it in a way a kid can understand.",
	},
}

// RenderSystemPrompt 渲染某类听众的系统提示词，概念名与描述原样嵌入。
func RenderSystemPrompt(conceptName, conceptDescription string, audience model.AudienceLevel) (string, error) {
	p, ok := personas[audience]
	if !ok {
		return "", ErrInvalidAudience
	}

	var b strings.Builder
	fmt.Fprintf(&b, p.role, `"`+conceptName+`"`)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, p.focus, `"`+conceptDescription+`"`)
	b.WriteString("\n\nGuidelines:\n")
	for _, g := range p.guidelines {
		b.WriteString("- ")
		b.WriteString(g)
		b.WriteString("\n")
	}
	b.WriteString("- ")
	b.WriteString(p.length)
	b.WriteString("\n\n")
	b.WriteString(p.opener)
	return b.String(), nil
}

// RenderExtractionPrompt 渲染从讲义中抽取概念的提示词。
func RenderExtractionPrompt(notes string) string {
	return `You are an expert educator preparing lecture notes for study with the Feynman Technique.
Break the notes below into 5-15 distinct, bite-sized concepts that a student should be able to explain in their own words.

For each concept return:
- concept_name: a clear, short name (2-6 words)
- concept_description: what the concept is about, in 1-2 sentences

Return ONLY a JSON array, with no markdown and no commentary, for example:
[
  {"concept_name": "Concept Title", "concept_description": "One or two sentences describing it."}
]

Lecture notes:

` + notes
}

// RenderTranscript 将会话历史渲染为 "Student:" / "AI:" 交替的文本，段落之间空一行。
func RenderTranscript(history []model.Message) string {
	lines := make([]string, 0, len(history))
	for _, m := range history {
		speaker := "AI"
		if m.Role == model.RoleUser {
			speaker = "Student"
		}
		lines = append(lines, speaker+": "+m.Content)
	}
	return strings.Join(lines, "\n\n")
}

// RenderFeedbackPrompt 渲染会话结束后的评估提示词。
func RenderFeedbackPrompt(conceptName, conceptDescription string, audience model.AudienceLevel, history []model.Message) string {
	return fmt.Sprintf(`You are an assessment expert reviewing how well a student explained a concept.

Concept: "%s"
Description: "%s"
Audience level: %s

Conversation transcript:

%s

Analyze the student's understanding and answer with a single JSON object:

{
  "overall_quality": "1-2 sentence summary of how well they explained the concept",
  "clear_parts": ["aspect they explained well"],
  "unclear_parts": ["aspect that was unclear, missing or wrong"],
  "jargon_used": ["technical term they used without explaining it"],
  "struggled_with": ["idea they had difficulty with"]
}

Rules:
- Be specific and refer to what the student actually said
- Any array may be empty
- Return ONLY the JSON object, no additional text`,
		conceptName, conceptDescription, audience, RenderTranscript(history))
}
