package models

// TotalAssessmentQuestions is the fixed length of the mental health check.
const TotalAssessmentQuestions = 5

// PhaseInitial is the phase label before the first question is asked.
// All other phase values are server-assigned and opaque to the client.
const PhaseInitial = "initial"

// AssessmentProgress tracks how far a mental health check has advanced.
// The analysis service is the only authority over these values; clients
// echo them back unchanged on every assessment-mode request.
type AssessmentProgress struct {
	QuestionsAsked     int    `json:"questions_asked"`
	TotalQuestions     int    `json:"total_questions"`
	AssessmentComplete bool   `json:"assessment_complete"`
	CurrentPhase       string `json:"current_phase"`
}

// NewAssessmentProgress returns the initial progress snapshot.
func NewAssessmentProgress() AssessmentProgress {
	return AssessmentProgress{
		QuestionsAsked:     0,
		TotalQuestions:     TotalAssessmentQuestions,
		AssessmentComplete: false,
		CurrentPhase:       PhaseInitial,
	}
}
