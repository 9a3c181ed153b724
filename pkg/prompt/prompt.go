// Package prompt assembles the instruction text sent to the chat model.
package prompt

import (
	"fmt"
	"os"
	"strings"

	"github.com/tmc/langchaingo/prompts"
	"github.com/xhad/shopmate/internal/logging"
	"github.com/xhad/shopmate/internal/models"
	"go.uber.org/zap"
)

// DefaultTemplate is used when no template file is available. It asks for the
// Answer / Product IDs reply format that the response parser reads first.
const DefaultTemplate = `You are a helpful shopping assistant. Follow these guidelines:
1. If the user greets you or asks non-product questions, respond politely and DO NOT return any product IDs
2. For product-related queries:
   - Recommend only products explicitly mentioned in the context
   - Prioritize products that match the user's preferences
   - If no matching products exist, clearly state that
3. When returning product IDs:
   - MUST use format: [PID123, PID456]
   - Only include products from context
   - For non-product responses, return: []
4. Maintain conversation context from recent history

{preferences}
Response format MUST BE EXACTLY:
Answer: [response text]
Product IDs: [comma-separated IDs or empty list]

Recent Conversation History:
{history}

Current Context:
{context}

Current Question: {input}`

// DefaultHistoryTurns is how many question/answer pairs go into a prompt.
const DefaultHistoryTurns = 3

type Input struct {
	Question    string
	Preferences *models.Preferences
	History     []models.Turn
	Context     []models.Chunk
}

type Composer struct {
	templatePath string
	historyTurns int
	logger       *zap.Logger
}

func NewComposer(templatePath string, historyTurns int, logger *zap.Logger) *Composer {
	if historyTurns < 0 {
		historyTurns = DefaultHistoryTurns
	}
	return &Composer{
		templatePath: templatePath,
		historyTurns: historyTurns,
		logger:       logging.OrNop(logger),
	}
}

// Template returns the template file contents, or DefaultTemplate when the
// file cannot be read.
func (c *Composer) Template() string {
	if c.templatePath == "" {
		return DefaultTemplate
	}
	data, err := os.ReadFile(c.templatePath)
	if err != nil {
		c.logger.Warn("prompt template unavailable, using default",
			zap.String("path", c.templatePath), zap.Error(err))
		return DefaultTemplate
	}
	if strings.TrimSpace(string(data)) == "" {
		c.logger.Warn("prompt template is empty, using default", zap.String("path", c.templatePath))
		return DefaultTemplate
	}
	return string(data)
}

// Compose renders one prompt. A template that fails to render is replaced by
// DefaultTemplate.
func (c *Composer) Compose(in Input) (string, error) {
	values := map[string]any{
		"preferences": RenderPreferences(in.Preferences),
		"history":     RenderHistory(in.History, c.historyTurns),
		"context":     RenderContext(in.Context),
		"input":       in.Question,
	}

	tmpl := c.Template()
	out, err := prompts.RenderTemplate(tmpl, prompts.TemplateFormatFString, values)
	if err == nil {
		return out, nil
	}
	if tmpl == DefaultTemplate {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}

	c.logger.Warn("prompt template failed to render, using default",
		zap.String("path", c.templatePath), zap.Error(err))
	out, err = prompts.RenderTemplate(DefaultTemplate, prompts.TemplateFormatFString, values)
	if err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}
	return out, nil
}

// RenderPreferences returns the preferences block, or "" for no preferences.
func RenderPreferences(p *models.Preferences) string {
	if p == nil {
		return ""
	}
	colors := strings.Join(p.Colors, ", ")
	if colors == "" {
		colors = "Any"
	}
	categories := strings.Join(p.Categories, ", ")
	if categories == "" {
		categories = "All"
	}
	size := p.Size
	if size == "" {
		size = "Any"
	}

	var b strings.Builder
	b.WriteString("User Preferences:\n")
	fmt.Fprintf(&b, "- Size: %s\n", size)
	fmt.Fprintf(&b, "- Colors: %s\n", colors)
	fmt.Fprintf(&b, "- Categories: %s\n", categories)
	return b.String()
}

// RenderHistory renders the last n turns as User/Assistant lines, oldest first.
func RenderHistory(turns []models.Turn, n int) string {
	if n <= 0 || len(turns) == 0 {
		return ""
	}
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}

	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", t.Prompt, t.Response)
	}
	return strings.TrimRight(b.String(), "\n")
}

func RenderContext(chunks []models.Chunk) string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return strings.Join(texts, "\n\n")
}
