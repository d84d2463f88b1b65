// Package translator adapts the chat completion backend into a
// single-unit book translator with failure classification.
package translator

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/MimeLyc/contextual-epub-translator/internal/llm"
)

type llmTranslator struct {
	client *llm.Client
}

// NewLLMTranslator wraps an LLM client as a Translator.
func NewLLMTranslator(client *llm.Client) Translator {
	return &llmTranslator{client: client}
}

func (t *llmTranslator) Translate(ctx context.Context, req Request) (string, error) {
	systemPrompt := buildSystemPrompt(req)
	userMessage := buildUserMessage(req)

	content, err := t.client.SimpleChat(ctx, userMessage, systemPrompt)
	if err != nil {
		return "", classify(err)
	}

	translated := cleanResponse(content)
	if strings.TrimSpace(translated) == "" {
		return "", &PermanentError{Err: fmt.Errorf("backend returned empty translation")}
	}
	return translated, nil
}

func buildSystemPrompt(req Request) string {
	var prompt strings.Builder

	source := req.SourceLang
	if source == "" {
		source = "the source language"
	}
	prompt.WriteString("You are a professional literary translator. Translate book text from " +
		source + " to " + req.TargetLang + ".\n\n")

	if req.Meta.Title != "" || req.Meta.Creator != "" {
		prompt.WriteString("=== BOOK INFORMATION ===\n")
		if req.Meta.Title != "" {
			prompt.WriteString(fmt.Sprintf("Title: %s\n", req.Meta.Title))
		}
		if req.Meta.Creator != "" {
			prompt.WriteString(fmt.Sprintf("Author: %s\n", req.Meta.Creator))
		}
		prompt.WriteString("\n")
	}

	prompt.WriteString("=== RULES ===\n")
	prompt.WriteString("1. Translate the text between <text> and </text> only.\n")
	prompt.WriteString("2. Preserve leading and trailing whitespace and line breaks exactly.\n")
	prompt.WriteString("3. Keep names, numbers and punctuation style consistent with the book.\n")
	prompt.WriteString("4. Output ONLY the translated text. No explanations, no quotes, no numbering.\n")

	return prompt.String()
}

func buildUserMessage(req Request) string {
	var msg strings.Builder
	if req.Context != "" {
		msg.WriteString("Preceding text (context only, do not translate):\n")
		msg.WriteString(req.Context)
		msg.WriteString("\n\n")
	}
	msg.WriteString("<text>")
	msg.WriteString(req.Text)
	msg.WriteString("</text>")
	return msg.String()
}

var (
	numberedPrefixPattern = regexp.MustCompile(`^\s*\d+[.)]\s+`)
	codeFencePattern      = regexp.MustCompile("^```[a-z]*\\n?|\\n?```$")
)

// cleanResponse strips decoration some models add around the
// translation: code fences, echoed <text> tags and numbered prefixes.
func cleanResponse(content string) string {
	content = codeFencePattern.ReplaceAllString(content, "")

	if strings.Contains(content, "<text>") {
		if start := strings.Index(content, "<text>"); start >= 0 {
			content = content[start+len("<text>"):]
		}
		if end := strings.LastIndex(content, "</text>"); end >= 0 {
			content = content[:end]
		}
	}

	content = numberedPrefixPattern.ReplaceAllString(content, "")
	return content
}
