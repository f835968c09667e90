package openai

import (
	"strings"
	"testing"

	"github.com/unamentis/unamentis/pkg/provider/llm"
)

func TestNewValidation(t *testing.T) {
	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Error("expected error for empty apiKey")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if p == nil {
		t.Fatal("New returned nil provider")
	}
}

func TestBuildParamsMessageOrder(t *testing.T) {
	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	req := llm.CompletionRequest{
		SystemPrompt: "You are a tutor.",
		Messages: []llm.Message{
			{Role: "user", Content: "What is photosynthesis?"},
			{Role: "assistant", Content: "It is how plants make food."},
			{Role: "user", Content: "Go deeper."},
		},
	}

	params, err := p.buildParams(req)
	if err != nil {
		t.Fatalf("buildParams returned error: %v", err)
	}

	// System prompt prepended, then history in order.
	if got := len(params.Messages); got != 4 {
		t.Fatalf("expected 4 messages, got %d", got)
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("expected first message to be a system message")
	}
	if params.Messages[1].OfUser == nil {
		t.Error("expected second message to be a user message")
	}
	if params.Messages[2].OfAssistant == nil {
		t.Error("expected third message to be an assistant message")
	}
	if params.Messages[3].OfUser == nil {
		t.Error("expected fourth message to be a user message")
	}
}

func TestBuildParamsUnknownRole(t *testing.T) {
	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	_, err = p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: "tool", Content: "{}"}},
	})
	if err == nil {
		t.Fatal("expected error for unknown role")
	}
	if !strings.Contains(err.Error(), "tool") {
		t.Errorf("error should name the offending role, got: %v", err)
	}
}

func TestBuildParamsOptionalFields(t *testing.T) {
	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	// Zero values mean "provider default" and must stay unset.
	params, err := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("buildParams returned error: %v", err)
	}
	if params.Temperature.Valid() {
		t.Error("expected Temperature to be unset for zero value")
	}
	if params.MaxCompletionTokens.Valid() {
		t.Error("expected MaxCompletionTokens to be unset for zero value")
	}

	params, err = p.buildParams(llm.CompletionRequest{
		Messages:    []llm.Message{{Role: "user", Content: "hi"}},
		Temperature: 0.7,
		MaxTokens:   256,
	})
	if err != nil {
		t.Fatalf("buildParams returned error: %v", err)
	}
	if !params.Temperature.Valid() || params.Temperature.Value != 0.7 {
		t.Errorf("unexpected Temperature: %+v", params.Temperature)
	}
	if !params.MaxCompletionTokens.Valid() || params.MaxCompletionTokens.Value != 256 {
		t.Errorf("unexpected MaxCompletionTokens: %+v", params.MaxCompletionTokens)
	}
}
