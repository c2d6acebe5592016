package llm

import (
	"fmt"
	"strings"
	"sync"
)

// DefaultQATemplate 默认问答提示词模板
// 包含变量：
// {{.Question}} - 用户问题
// {{.Context}} - 检索的上下文
const DefaultQATemplate = `Use the following pieces of context to answer the question at the end. If you don't know the answer, just say that you don't know, don't try to make up an answer.

{{.Context}}
Question: {{.Question}}
Helpful Answer:`

// DefaultCondenseTemplate 将追问改写为独立问题的模板
// 包含变量：
// {{.History}} - 对话历史
// {{.Question}} - 追问
const DefaultCondenseTemplate = `Given the following conversation and a follow up question, rephrase the follow up question to be a standalone question, in its original language.

Chat History:
{{.History}}
Follow Up Input: {{.Question}}
Standalone question:`

// formatContext 格式化上下文内容
func formatContext(contexts []string) string {
	var formattedContext strings.Builder
	for i, ctx := range contexts {
		formattedContext.WriteString(fmt.Sprintf("[%d] %s\n\n", i+1, ctx))
	}
	return formattedContext.String()
}

// formatHistory 将对话历史格式化为文本
func formatHistory(history []Message) string {
	var b strings.Builder
	for _, msg := range history {
		switch msg.Role {
		case RoleUser:
			b.WriteString("Human: ")
		case RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			continue
		}
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// PromptBuilder 检索增强提示词构建器
type PromptBuilder struct {
	mu               sync.RWMutex
	template         string
	condenseTemplate string
}

// PromptOption 提示词构建器选项
type PromptOption func(*PromptBuilder)

// WithTemplate 设置问答提示词模板
func WithTemplate(template string) PromptOption {
	return func(b *PromptBuilder) {
		b.template = template
	}
}

// WithCondenseTemplate 设置追问改写模板
func WithCondenseTemplate(template string) PromptOption {
	return func(b *PromptBuilder) {
		b.condenseTemplate = template
	}
}

// NewPromptBuilder 创建提示词构建器
func NewPromptBuilder(opts ...PromptOption) *PromptBuilder {
	b := &PromptBuilder{
		template:         DefaultQATemplate,
		condenseTemplate: DefaultCondenseTemplate,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build 用检索到的上下文和问题构建提示词
func (b *PromptBuilder) Build(question string, contexts []string) string {
	b.mu.RLock()
	template := b.template
	b.mu.RUnlock()

	prompt := template
	prompt = strings.ReplaceAll(prompt, "{{.Question}}", question)
	prompt = strings.ReplaceAll(prompt, "{{.Context}}", formatContext(contexts))
	return prompt
}

// Condense 构建把追问改写为独立问题的提示词
func (b *PromptBuilder) Condense(question string, history []Message) string {
	b.mu.RLock()
	template := b.condenseTemplate
	b.mu.RUnlock()

	prompt := template
	prompt = strings.ReplaceAll(prompt, "{{.Question}}", question)
	prompt = strings.ReplaceAll(prompt, "{{.History}}", formatHistory(history))
	return prompt
}

// SetTemplate 设置自定义问答模板
func (b *PromptBuilder) SetTemplate(template string) *PromptBuilder {
	b.mu.Lock()
	b.template = template
	b.mu.Unlock()
	return b
}
