package storage

import (
	"context"
	"testing"
)

func TestSettings_Defaults(t *testing.T) {
	settings := NewSettings(createTestStore(t), "env-key", true)
	ctx := context.Background()

	key, err := settings.APIKey(ctx)
	if err != nil || key != "env-key" {
		t.Errorf("Expected config default key, got %q err=%v", key, err)
	}

	prompt, err := settings.PromptTemplate(ctx)
	if err != nil || prompt != "" {
		t.Errorf("Expected no custom prompt, got %q err=%v", prompt, err)
	}

	filler, err := settings.FillerRemoval(ctx)
	if err != nil || !filler {
		t.Errorf("Expected config default filler removal, got %v err=%v", filler, err)
	}
}

func TestSettings_StoredOverridesDefault(t *testing.T) {
	settings := NewSettings(createTestStore(t), "env-key", false)
	ctx := context.Background()

	if err := settings.SetAPIKey(ctx, "stored-key-1234"); err != nil {
		t.Fatalf("SetAPIKey failed: %v", err)
	}
	if err := settings.SetPromptTemplate(ctx, "Topics for ${fullConversation}"); err != nil {
		t.Fatalf("SetPromptTemplate failed: %v", err)
	}
	if err := settings.SetFillerRemoval(ctx, true); err != nil {
		t.Fatalf("SetFillerRemoval failed: %v", err)
	}

	view, err := settings.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if view.APIKey != "****1234" || !view.APIKeyConfigured {
		t.Errorf("Expected masked stored key, got %+v", view)
	}
	if view.CustomPrompt != "Topics for ${fullConversation}" {
		t.Errorf("Unexpected prompt %q", view.CustomPrompt)
	}
	if !view.FillerRemoval {
		t.Error("Expected filler removal enabled")
	}

	// Clearing reverts to defaults
	settings.SetAPIKey(ctx, "")
	settings.SetPromptTemplate(ctx, "")
	if key, _ := settings.APIKey(ctx); key != "env-key" {
		t.Errorf("Expected default key after clear, got %q", key)
	}
	if prompt, _ := settings.PromptTemplate(ctx); prompt != "" {
		t.Errorf("Expected default prompt after clear, got %q", prompt)
	}
}

func TestMaskSecret(t *testing.T) {
	tests := map[string]string{
		"":             "",
		"abc":          "****",
		"AIzaSyABCDEF": "****CDEF",
	}
	for input, expected := range tests {
		if got := MaskSecret(input); got != expected {
			t.Errorf("MaskSecret(%q) = %q, expected %q", input, got, expected)
		}
	}
}
