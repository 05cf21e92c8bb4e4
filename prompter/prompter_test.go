package prompter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func TestNewPrefersGroq(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gk")
	t.Setenv("OPENAI_API_KEY", "ok")

	p, err := New()
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != "groq" {
		t.Errorf("provider = %q, want groq", p.Name())
	}
}

func TestNewFallsBackToOpenAI(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "ok")

	p, err := New()
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != "openai" {
		t.Errorf("provider = %q, want openai", p.Name())
	}
}

func TestNewNoKeys(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	if _, err := New(); err == nil {
		t.Fatal("expected error with no API keys set")
	}
}

// testPrompter builds a chatPrompter pointed at a local server so the
// request wiring can be asserted without the real API.
func testPrompter(t *testing.T, handler http.HandlerFunc) *chatPrompter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	config := openai.DefaultConfig("test-key")
	config.BaseURL = srv.URL
	return &chatPrompter{
		client: openai.NewClientWithConfig(config),
		model:  "test-model",
		name:   "test",
	}
}

func completionBody(content string) string {
	return `{"choices":[{"message":{"role":"assistant","content":` +
		mustJSON(content) + `}}]}`
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestSynthesize(t *testing.T) {
	var gotModel string
	var gotMessages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	p := testPrompter(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotModel = req.Model
		gotMessages = req.Messages
		io.WriteString(w, completionBody("  a misty forest, volumetric light --ar 16:9  "))
	})

	prompt, err := p.Synthesize(context.Background(), "a misty forest at dawn")
	if err != nil {
		t.Fatal(err)
	}

	if prompt != "a misty forest, volumetric light --ar 16:9" {
		t.Errorf("prompt = %q", prompt)
	}
	if gotModel != "test-model" {
		t.Errorf("model = %q", gotModel)
	}
	if len(gotMessages) != 2 {
		t.Fatalf("got %d messages, want 2", len(gotMessages))
	}
	if gotMessages[0].Role != "system" || !strings.Contains(gotMessages[0].Content, "MidJourney") {
		t.Errorf("system message = %+v", gotMessages[0])
	}
	if gotMessages[1].Role != "user" || !strings.Contains(gotMessages[1].Content, "a misty forest at dawn") {
		t.Errorf("user message = %+v", gotMessages[1])
	}
}

func TestSynthesizeNoChoices(t *testing.T) {
	p := testPrompter(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[]}`)
	})

	if _, err := p.Synthesize(context.Background(), "anything"); err == nil {
		t.Fatal("expected error on empty choices")
	}
}

func TestSynthesizeBlankContent(t *testing.T) {
	p := testPrompter(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, completionBody("   "))
	})

	if _, err := p.Synthesize(context.Background(), "anything"); err == nil {
		t.Fatal("expected error on blank completion")
	}
}

func TestSynthesizeAPIError(t *testing.T) {
	p := testPrompter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
		io.WriteString(w, `{"error":{"message":"boom"}}`)
	})

	if _, err := p.Synthesize(context.Background(), "anything"); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestFakePrompter(t *testing.T) {
	f := NewFake("neon skyline --v 6", nil)
	prompt, err := f.Synthesize(context.Background(), "a city at night")
	if err != nil {
		t.Fatal(err)
	}
	if prompt != "neon skyline --v 6" {
		t.Errorf("prompt = %q", prompt)
	}
	if f.Calls != 1 || f.LastInput != "a city at night" {
		t.Errorf("call bookkeeping: calls=%d input=%q", f.Calls, f.LastInput)
	}

	f = NewFake("", errors.New("boom"))
	if _, err := f.Synthesize(context.Background(), "x"); err == nil {
		t.Fatal("expected error from failing fake")
	}
}
