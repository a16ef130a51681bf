package conversation

import "mindscope/internal/models"

// Tracker holds the assessment phase state for one conversation. The
// analysis service owns these values; the tracker only stores what the
// server echoed back and never advances the counter on its own.
type Tracker struct {
	progress models.AssessmentProgress
}

// NewTracker returns a tracker reset to the initial phase.
func NewTracker() *Tracker {
	t := &Tracker{}
	t.Reset(models.TotalAssessmentQuestions)
	return t
}

// Reset returns the tracker to the start of a fresh assessment run.
func (t *Tracker) Reset(totalQuestions int) {
	if totalQuestions <= 0 {
		totalQuestions = models.TotalAssessmentQuestions
	}
	t.progress = models.AssessmentProgress{
		QuestionsAsked:     0,
		TotalQuestions:     totalQuestions,
		AssessmentComplete: false,
		CurrentPhase:       models.PhaseInitial,
	}
}

// ApplyServerProgress replaces the tracked state with the server-supplied
// snapshot verbatim. AssessmentComplete latches: once a run is complete it
// stays complete until the next Reset. A nil snapshot leaves state unchanged.
func (t *Tracker) ApplyServerProgress(p *models.AssessmentProgress) {
	if p == nil {
		return
	}
	complete := t.progress.AssessmentComplete || p.AssessmentComplete
	t.progress = *p
	t.progress.AssessmentComplete = complete
}

// MarkComplete forces the run complete, used when leaving assessment mode
// explicitly ("New Chat") rather than by finishing the questions.
func (t *Tracker) MarkComplete() {
	t.progress.AssessmentComplete = true
}

// Progress returns the current snapshot.
func (t *Tracker) Progress() models.AssessmentProgress {
	return t.progress
}
