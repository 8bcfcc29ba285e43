package openai

import (
	"testing"

	"github.com/Maratmain/ai-hr/pkg/provider/llm"
)

func TestConvertMessage_System(t *testing.T) {
	param, err := convertMessage(llm.Message{Role: "system", Content: "You are an interviewer."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfSystem == nil {
		t.Fatal("expected OfSystem to be set")
	}
}

func TestConvertMessage_User(t *testing.T) {
	param, err := convertMessage(llm.Message{Role: "user", Content: "Расскажите о себе."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfUser == nil {
		t.Fatal("expected OfUser to be set")
	}
}

func TestConvertMessage_Assistant(t *testing.T) {
	param, err := convertMessage(llm.Message{Role: "assistant", Content: "Понимаю."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfAssistant == nil {
		t.Fatal("expected OfAssistant to be set")
	}
}

func TestConvertMessage_UnknownRole(t *testing.T) {
	if _, err := convertMessage(llm.Message{Role: "tool", Content: "x"}); err == nil {
		t.Fatal("expected error for unsupported role, got nil")
	}
}

func TestBuildParams_ResponseSchema(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}
	params, err := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
		ResponseSchema: map[string]any{
			"type": "object",
		},
		ResponseSchemaName: "turn_reply",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.ResponseFormat.OfJSONSchema == nil {
		t.Fatal("expected a json_schema response format")
	}
	if got := params.ResponseFormat.OfJSONSchema.JSONSchema.Name; got != "turn_reply" {
		t.Errorf("schema name: got %q, want turn_reply", got)
	}
}

func TestBuildParams_NoSchema(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}
	params, err := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.ResponseFormat.OfJSONSchema != nil {
		t.Fatal("expected no response format without a schema")
	}
}

func TestModelCapabilities_GPT4oMini(t *testing.T) {
	caps := modelCapabilities("gpt-4o-mini")
	if caps.ContextWindow != 128_000 {
		t.Errorf("gpt-4o-mini: expected context window 128000, got %d", caps.ContextWindow)
	}
	if !caps.SupportsJSONSchema {
		t.Error("gpt-4o-mini: expected SupportsJSONSchema=true")
	}
	if !caps.SupportsStreaming {
		t.Error("gpt-4o-mini: expected SupportsStreaming=true")
	}
	if caps.MaxOutputTokens <= 0 {
		t.Error("gpt-4o-mini: expected MaxOutputTokens > 0")
	}
}

func TestModelCapabilities_GPT35Turbo(t *testing.T) {
	caps := modelCapabilities("gpt-3.5-turbo")
	if caps.ContextWindow != 16_385 {
		t.Errorf("gpt-3.5-turbo: expected context window 16385, got %d", caps.ContextWindow)
	}
	if caps.SupportsJSONSchema {
		t.Error("gpt-3.5-turbo: expected SupportsJSONSchema=false")
	}
}

func TestModelCapabilities_GPT4(t *testing.T) {
	caps := modelCapabilities("gpt-4")
	if caps.ContextWindow != 8_192 {
		t.Errorf("gpt-4: expected context window 8192, got %d", caps.ContextWindow)
	}
}

func TestModelCapabilities_UnknownModel(t *testing.T) {
	caps := modelCapabilities("my-custom-model")
	if caps.ContextWindow <= 0 {
		t.Error("unknown model: expected positive ContextWindow")
	}
	if caps.MaxOutputTokens <= 0 {
		t.Error("unknown model: expected positive MaxOutputTokens")
	}
}

func TestCountTokens_Estimation(t *testing.T) {
	p := &Provider{model: "gpt-4o"}
	count, err := p.CountTokens([]llm.Message{
		{Role: "user", Content: "Hello world"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count <= 0 {
		t.Errorf("expected positive token count, got %d", count)
	}
}

func TestNew_MissingAPIKey(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestNew_MissingModel(t *testing.T) {
	if _, err := New("sk-test", ""); err == nil {
		t.Fatal("expected error for empty model")
	}
}

func TestNew_Options(t *testing.T) {
	_, err := New("sk-test", "gpt-4o",
		WithBaseURL("https://custom.example.com"),
		WithOrganization("org-123"),
	)
	if err != nil {
		t.Fatalf("unexpected error with valid options: %v", err)
	}
}
