package translator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/contextual-epub-translator/internal/llm"
)

func newBackendTranslator(t *testing.T, handler http.HandlerFunc) Translator {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := llm.NewClient(&llm.Config{
		APIKey:      "test-key",
		APIURL:      server.URL,
		Model:       "test/model",
		MaxTokens:   1000,
		Temperature: 0.3,
		Timeout:     5,
		RateLimit:   1000,
	})
	require.NoError(t, err)
	return NewLLMTranslator(client)
}

func respondWith(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(llm.ChatResponse{
			Choices: []llm.Choice{{Message: llm.Message{Role: "assistant", Content: content}}},
		})
	}
}

func TestTranslateBuildsPrompt(t *testing.T) {
	var gotRequest llm.ChatRequest
	tr := newBackendTranslator(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))
		respondWith("我是貓。")(w, r)
	})

	got, err := tr.Translate(context.Background(), Request{
		Text:       "吾輩は猫である。",
		Context:    "第一章",
		SourceLang: "ja",
		TargetLang: "zh-Hant",
		Meta:       BookMeta{Title: "吾輩は猫である", Creator: "夏目漱石"},
	})
	require.NoError(t, err)
	assert.Equal(t, "我是貓。", got)

	require.Len(t, gotRequest.Messages, 2)
	system := gotRequest.Messages[0].Content
	assert.Contains(t, system, "ja")
	assert.Contains(t, system, "zh-Hant")
	assert.Contains(t, system, "夏目漱石")

	user := gotRequest.Messages[1].Content
	assert.Contains(t, user, "<text>吾輩は猫である。</text>")
	assert.Contains(t, user, "第一章")
	assert.True(t, strings.Index(user, "第一章") < strings.Index(user, "<text>"))
}

func TestTranslateCleansDecoratedResponses(t *testing.T) {
	cases := map[string]struct {
		response string
		want     string
	}{
		"plain":           {"translated", "translated"},
		"numbered prefix": {"1. translated", "translated"},
		"paren prefix":    {"2) translated", "translated"},
		"code fence":      {"```\ntranslated\n```", "translated"},
		"echoed tags":     {"<text>translated</text>", "translated"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			tr := newBackendTranslator(t, respondWith(tc.response))
			got, err := tr.Translate(context.Background(), Request{Text: "x", TargetLang: "zh"})
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTranslatePreservesInnerWhitespace(t *testing.T) {
	tr := newBackendTranslator(t, respondWith("<text>  两端  </text>"))
	got, err := tr.Translate(context.Background(), Request{Text: "  x  ", TargetLang: "zh"})
	require.NoError(t, err)
	assert.Equal(t, "  两端  ", got)
}

func TestTranslateEmptyResponseIsPermanent(t *testing.T) {
	tr := newBackendTranslator(t, respondWith("   "))
	_, err := tr.Translate(context.Background(), Request{Text: "x", TargetLang: "zh"})
	require.Error(t, err)

	var permanent *PermanentError
	assert.True(t, errors.As(err, &permanent))
	assert.False(t, IsTransient(err))
}

func TestTranslateClassifiesFailures(t *testing.T) {
	cases := map[string]struct {
		status    int
		transient bool
	}{
		"throttled":    {http.StatusTooManyRequests, true},
		"server error": {http.StatusInternalServerError, true},
		"bad request":  {http.StatusBadRequest, false},
		"unauthorized": {http.StatusUnauthorized, false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			tr := newBackendTranslator(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, name, tc.status)
			})
			_, err := tr.Translate(context.Background(), Request{Text: "x", TargetLang: "zh"})
			require.Error(t, err)
			assert.Equal(t, tc.transient, IsTransient(err))
		})
	}
}

func TestTranslateConnectionErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(respondWith("ok"))
	client, err := llm.NewClient(&llm.Config{
		APIKey: "k", APIURL: server.URL, Model: "m",
		MaxTokens: 100, Temperature: 0.3, Timeout: 1, RateLimit: 1000,
	})
	require.NoError(t, err)
	server.Close()

	tr := NewLLMTranslator(client)
	_, err = tr.Translate(context.Background(), Request{Text: "x", TargetLang: "zh"})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestTranslateContextCancellationPassesThrough(t *testing.T) {
	tr := newBackendTranslator(t, respondWith("ok"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tr.Translate(ctx, Request{Text: "x", TargetLang: "zh"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, IsTransient(err))
}
