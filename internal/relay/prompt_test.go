package relay

import (
	"strings"
	"testing"
)

func TestFormatQuestionsNumbering(t *testing.T) {
	questions := []string{"Tell me about yourself.", "Why this role?", "Where do you see yourself in five years?"}
	got := FormatQuestions(questions)

	lines := strings.Split(got, "\n")
	if len(lines) != len(questions) {
		t.Fatalf("formatted %d lines, want %d", len(lines), len(questions))
	}
	want := []string{
		"1. Tell me about yourself.",
		"2. Why this role?",
		"3. Where do you see yourself in five years?",
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestComposePromptTail(t *testing.T) {
	questions := []string{"What is your name?", "Describe a challenge you overcame."}
	prompt := ComposePrompt(questions)

	wantTail := "1. What is your name?\n2. Describe a challenge you overcame."
	if !strings.HasSuffix(prompt, wantTail) {
		t.Fatalf("prompt tail mismatch:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Here are the questions you must ask:\n1. What is your name?") {
		t.Fatalf("prompt missing question header:\n%s", prompt)
	}
	if !strings.HasPrefix(prompt, "You are a friendly and professional job interviewer.") {
		t.Fatalf("prompt missing persona block:\n%s", prompt)
	}
}

func TestComposePromptSingleQuestion(t *testing.T) {
	prompt := ComposePrompt([]string{"Why us?"})
	if !strings.HasSuffix(prompt, "Here are the questions you must ask:\n1. Why us?") {
		t.Fatalf("single question prompt mismatch:\n%s", prompt)
	}
}
