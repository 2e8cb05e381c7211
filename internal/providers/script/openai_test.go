package script

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func newGenerator(t *testing.T, baseURL string) *OpenAIGenerator {
	t.Helper()
	g, err := NewOpenAIGenerator(Options{APIKey: "test-key", BaseURL: baseURL})
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	return g
}

func TestGenerateParsesScript(t *testing.T) {
	srv := chatServer(t, `{"title":"The Lighthouse","scenes":[{"imagePrompt":"a stormy sea","narration":"The sea raged."},{"imagePrompt":"a lighthouse beam","narration":"One light held."}]}`)
	defer srv.Close()

	script, err := newGenerator(t, srv.URL).Generate(context.Background(), "a lighthouse", 2)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if script.Title != "The Lighthouse" {
		t.Errorf("title: %s", script.Title)
	}
	if len(script.Scenes) != 2 || script.Scenes[1].Narration != "One light held." {
		t.Errorf("scenes: %+v", script.Scenes)
	}
}

func TestGenerateStripsCodeFence(t *testing.T) {
	srv := chatServer(t, "```json\n{\"title\":\"T\",\"scenes\":[{\"imagePrompt\":\"p\",\"narration\":\"n\"}]}\n```")
	defer srv.Close()

	script, err := newGenerator(t, srv.URL).Generate(context.Background(), "t", 1)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(script.Scenes) != 1 {
		t.Errorf("scenes: %+v", script.Scenes)
	}
}

func TestGenerateTruncatesExtraScenes(t *testing.T) {
	srv := chatServer(t, `{"title":"T","scenes":[{"imagePrompt":"a","narration":"1"},{"imagePrompt":"b","narration":"2"},{"imagePrompt":"c","narration":"3"}]}`)
	defer srv.Close()

	script, err := newGenerator(t, srv.URL).Generate(context.Background(), "t", 2)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(script.Scenes) != 2 {
		t.Errorf("expected truncation to 2, got %d", len(script.Scenes))
	}
}

func TestGenerateRejectsEmptyScenes(t *testing.T) {
	srv := chatServer(t, `{"title":"T","scenes":[]}`)
	defer srv.Close()

	if _, err := newGenerator(t, srv.URL).Generate(context.Background(), "t", 2); err == nil {
		t.Fatal("expected error for empty scenes")
	}
}

func TestGenerateSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	if _, err := newGenerator(t, srv.URL).Generate(context.Background(), "t", 2); err == nil {
		t.Fatal("expected error for 429")
	}
}

func TestNewGeneratorRequiresKey(t *testing.T) {
	if _, err := NewOpenAIGenerator(Options{}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}
