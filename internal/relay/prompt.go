package relay

import (
	"fmt"
	"strings"
)

const personaPrompt = `You are a friendly and professional job interviewer.
Your task is to conduct a mock interview by asking the user the following questions one by one.
Do not ask them all at once. Wait for the user to answer each question before moving to the next.
Engage with their answers briefly if appropriate, but keep the interview focused.
Start by saying "Hello, thank you for joining. I'll be conducting your interview today. Let's start with the first question."`

// FormatQuestions renders a 1-indexed numbered list, one question per line.
func FormatQuestions(questions []string) string {
	lines := make([]string, 0, len(questions))
	for i, q := range questions {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, q))
	}
	return strings.Join(lines, "\n")
}

// ComposePrompt builds the full system prompt handed to the upstream agent.
func ComposePrompt(questions []string) string {
	return personaPrompt + "\nHere are the questions you must ask:\n" + FormatQuestions(questions)
}
