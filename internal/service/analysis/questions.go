package analysis

import (
	"fmt"
	"strings"

	"mindscope/internal/analysis/sentiment"
)

// TotalQuestions is the fixed length of the mental health check.
const TotalQuestions = len(mentalHealthQuestions)

var mentalHealthQuestions = [...]string{
	"How have you been sleeping lately? Have you noticed any changes in your sleep patterns?",
	"What's your energy level been like recently? Have you felt more tired or fatigued than usual?",
	"How is your appetite? Have there been any significant changes in your eating habits?",
	"Have you been able to enjoy activities that usually bring you pleasure?",
	"How have you been coping with stress recently? What helps you feel better when you're struggling?",
}

// Questions returns the assessment question bank in order.
func Questions() []string {
	out := make([]string, TotalQuestions)
	copy(out, mentalHealthQuestions[:])
	return out
}

const personaPreamble = `You are MindScope, a calm and compassionate AI that helps users understand and regulate emotions.
Speak naturally, like a thoughtful therapist and caring friend.`

func promptHeader(userInput string, combined sentiment.Result, sources []string) string {
	input := strings.TrimSpace(userInput)
	if input == "" {
		input = "(No text input)"
	}
	return fmt.Sprintf(`%s

User input: %s
Detected sentiment: %s (confidence: %.2f)
Input sources: %s
`, personaPreamble, input, combined.FinalSentiment, combined.Confidence, strings.Join(sources, ", "))
}

func regularChatPrompt(userInput string, combined sentiment.Result, sources []string) string {
	return promptHeader(userInput, combined, sources) + `
This is a regular chat conversation (not mental health assessment mode).

Respond naturally to the user's input as a supportive AI companion. Provide helpful, empathetic responses without initiating any structured assessment questions.

Guidelines:
- Be warm, empathetic, and supportive
- Respond directly to what the user is sharing
- Don't ask assessment questions unless the user specifically requests it
- Keep responses conversational and natural

Respond below:
`
}

func firstQuestionPrompt(userInput string, combined sentiment.Result, sources []string) string {
	return promptHeader(userInput, combined, sources) + fmt.Sprintf(`
This is our first interaction. Start the mental health assessment.

YOUR TASK:
1. Briefly introduce yourself as MindScope
2. Ask the first assessment question naturally

FIRST QUESTION: %s

Keep your response to 2-3 sentences max. Just ask the question.
`, mentalHealthQuestions[0])
}

func nextQuestionPrompt(userInput string, combined sentiment.Result, sources []string, questionIndex int) string {
	return promptHeader(userInput, combined, sources) + fmt.Sprintf(`
Continue the mental health assessment. Ask the next question.

NEXT QUESTION (%d/%d): %s

Keep your response to 1-2 sentences. Just ask the question naturally.
`, questionIndex+1, TotalQuestions, mentalHealthQuestions[questionIndex])
}

func summaryPrompt(userInput string, combined sentiment.Result, sources []string, answered int) string {
	return promptHeader(userInput, combined, sources) + fmt.Sprintf(`
Assessment complete. Provide a concise summary and supportive response.

Key points: Completed %d questions in mental health assessment.

Provide a warm, supportive summary in 3-4 sentences. Offer 1-2 practical suggestions.
`, answered)
}

func assessmentFallback(questionIndex int) string {
	if questionIndex < 0 {
		questionIndex = 0
	}
	if questionIndex >= TotalQuestions {
		questionIndex = TotalQuestions - 1
	}
	return "I'm here to listen and support you. " + mentalHealthQuestions[questionIndex]
}

const regularFallback = "I'm here to listen. Could you tell me a bit more about how you've been feeling lately?"
