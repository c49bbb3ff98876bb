package dialogue

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/LoveLedger/LoveLedger/internal/provider"
)

func TestRedactorMasksContactDetails(t *testing.T) {
	r := NewRedactor()
	in := "Write me at ada@example.com or call 555-123-4567"
	want := "Write me at [REDACTED:EMAIL] or call [REDACTED:PHONE]"
	if got := r.Redact(in); got != want {
		t.Fatalf("Redact() = %q, want %q", got, want)
	}
	if got := r.Found(in); !reflect.DeepEqual(got, []string{"email", "phone"}) {
		t.Fatalf("Found() = %v", got)
	}
}

func TestRedactorLeavesPlainLinesAlone(t *testing.T) {
	r := NewRedactor()
	in := "The rooftop at 8 feels like a scene from a film."
	if got := r.Redact(in); got != in {
		t.Fatalf("expected line unchanged, got %q", got)
	}
	if kinds := r.Found(in); len(kinds) != 0 {
		t.Fatalf("expected no findings, got %v", kinds)
	}
}

func TestRedactorSelectedKinds(t *testing.T) {
	r := NewRedactor("url", "nonsense")
	in := "See https://example.com/menu and mail bea@example.com"
	want := "See [REDACTED:URL] and mail bea@example.com"
	if got := r.Redact(in); got != want {
		t.Fatalf("Redact() = %q, want %q", got, want)
	}

	var nilRedactor *Redactor
	if nilRedactor.Redact(in) != in || nilRedactor.Found(in) != nil {
		t.Fatal("nil redactor must be a no-op")
	}
}

func TestProviderGeneratorRedactsOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Ada: Text me on +1 555 123 4567!"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	gen := NewProviderGenerator(provider.NewOpenAIProvider("k", server.URL, "m"), ProviderConfig{Redactor: NewRedactor()})
	line, err := gen.GenerateTurn(context.Background(), TurnContext{SpeakerName: "Ada"})
	if err != nil {
		t.Fatalf("GenerateTurn: %v", err)
	}
	if line != "Text me on [REDACTED:PHONE]!" {
		t.Fatalf("unexpected line %q", line)
	}
}
