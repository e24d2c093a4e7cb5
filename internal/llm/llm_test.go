package llm

import (
	"strings"
	"testing"
)

func TestProviderErrorFormat(t *testing.T) {
	err := &ProviderError{Provider: "openai", StatusCode: 429, Message: "rate limited"}
	if got := err.Error(); got != "openai: rate limited (status 429)" {
		t.Fatalf("Error() = %q", got)
	}
	bare := &ProviderError{Provider: "anthropic", Message: "model returned empty content"}
	if got := bare.Error(); got != "anthropic: model returned empty content" {
		t.Fatalf("Error() = %q", got)
	}
}

func TestContextOverflowErrorFormat(t *testing.T) {
	err := &ContextOverflowError{Provider: "openai", Message: "maximum context length exceeded"}
	if !strings.Contains(err.Error(), "context window exceeded") {
		t.Fatalf("Error() = %q", err.Error())
	}
}

func TestCompactBody(t *testing.T) {
	got := CompactBody([]byte("{\n  \"error\": \"bad\"\n}"))
	if strings.Contains(got, "\n") {
		t.Fatalf("CompactBody() = %q, want single line", got)
	}
	long := CompactBody([]byte(strings.Repeat("x", 2000)))
	if len(long) != 512 {
		t.Fatalf("len = %d, want 512", len(long))
	}
}
