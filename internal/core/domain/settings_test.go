package domain

import "testing"

func TestAIProvider_IsValid(t *testing.T) {
	tests := []struct {
		provider AIProvider
		valid    bool
		needsKey bool
	}{
		{AIProviderOpenAI, true, true},
		{AIProviderOpenAICompatible, true, false},
		{AIProviderOllama, true, false},
		{AIProvider("anthropic"), false, false},
		{AIProvider(""), false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			if tt.provider.IsValid() != tt.valid {
				t.Errorf("IsValid() = %v, want %v", tt.provider.IsValid(), tt.valid)
			}
			if tt.provider.RequiresAPIKey() != tt.needsKey {
				t.Errorf("RequiresAPIKey() = %v, want %v", tt.provider.RequiresAPIKey(), tt.needsKey)
			}
		})
	}
}

func TestEmbeddingSettings_IsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		settings EmbeddingSettings
		want     bool
	}{
		{"empty", EmbeddingSettings{}, false},
		{"openai without key", EmbeddingSettings{Provider: AIProviderOpenAI}, false},
		{"openai with key", EmbeddingSettings{Provider: AIProviderOpenAI, APIKey: "sk-test"}, true},
		{"ollama without key", EmbeddingSettings{Provider: AIProviderOllama, BaseURL: "http://localhost:11434"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.settings.IsConfigured(); got != tt.want {
				t.Errorf("IsConfigured() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLLMSettings_IsConfigured(t *testing.T) {
	if (&LLMSettings{}).IsConfigured() {
		t.Error("expected empty settings to be unconfigured")
	}
	if (&LLMSettings{Provider: AIProviderOpenAI}).IsConfigured() {
		t.Error("expected openai without key to be unconfigured")
	}
	if !(&LLMSettings{Provider: AIProviderOpenAICompatible, BaseURL: "http://vllm:8000/v1"}).IsConfigured() {
		t.Error("expected compatible provider without key to be configured")
	}
}
