package utils

import (
	"strings"
	"testing"
)

func TestNewTokenCounter(t *testing.T) {
	counter, err := NewTokenCounter()
	if err != nil {
		t.Fatalf("NewTokenCounter failed: %v", err)
	}
	if counter == nil {
		t.Fatal("NewTokenCounter returned nil counter")
	}
}

func TestCountTokens(t *testing.T) {
	counter, err := NewTokenCounter()
	if err != nil {
		t.Fatalf("Failed to create token counter: %v", err)
	}

	tests := []struct {
		text      string
		minTokens int
		maxTokens int
	}{
		{"", 0, 0},
		{"Hello", 1, 2},
		{"Hello world", 2, 3},
		{"Ask something to your orchestrator agent.", 6, 10},
		{strings.Repeat("word ", 100), 90, 110},
	}

	for _, tt := range tests {
		t.Run(tt.text[:minInt(len(tt.text), 20)], func(t *testing.T) {
			tokens := counter.CountTokens(tt.text)
			if tokens < tt.minTokens || tokens > tt.maxTokens {
				t.Errorf("CountTokens(%q) = %d, want between %d and %d",
					tt.text, tokens, tt.minTokens, tt.maxTokens)
			}
		})
	}
}

func TestCountTokensSimple(t *testing.T) {
	tokens := CountTokensSimple("Hello world")
	if tokens < 2 || tokens > 3 {
		t.Errorf("CountTokensSimple(\"Hello world\") = %d, want between 2 and 3", tokens)
	}
}

func TestNilCounterFallback(t *testing.T) {
	var counter *TokenCounter
	if got := counter.CountTokens("abcdefgh"); got != 2 {
		t.Errorf("expected character estimate 2, got %d", got)
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
