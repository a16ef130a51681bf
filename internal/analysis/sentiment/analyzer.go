package sentiment

import (
	"strings"
)

// Label is a coarse sentiment category attached to analyzed input.
type Label string

const (
	Positive Label = "positive"
	Negative Label = "negative"
	Anxious  Label = "anxious"
	Neutral  Label = "neutral"
)

// Result is the combined sentiment reported back to the client. The shape
// travels verbatim in the analyze response as combined_sentiment.
type Result struct {
	FinalSentiment Label   `json:"final_sentiment"`
	Confidence     float64 `json:"confidence"`
}

var keywordBuckets = map[Label][]string{
	Positive: {
		"happy", "glad", "great", "good", "better", "grateful", "thankful",
		"hopeful", "calm", "relaxed", "excited", "enjoy", "love", "proud",
		"improving", "rested", "energetic", "optimistic",
	},
	Negative: {
		"sad", "down", "depressed", "unhappy", "tired", "exhausted",
		"hopeless", "lonely", "alone", "crying", "cry", "worthless",
		"empty", "numb", "miserable", "awful", "terrible", "hurt",
		"can't sleep", "no energy", "no appetite", "lost interest",
	},
	Anxious: {
		"anxious", "anxiety", "worried", "worry", "nervous", "panic",
		"overwhelmed", "stressed", "stress", "scared", "afraid", "fear",
		"racing thoughts", "on edge", "restless", "tense",
	},
}

// Analyze scores free-form text against the emotion lexicon and returns the
// dominant sentiment with a confidence proportional to keyword density.
// Empty or unmatched input is neutral with zero confidence.
func Analyze(text string) Result {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return Result{FinalSentiment: Neutral, Confidence: 0}
	}

	scores := make(map[Label]int)
	for label, keywords := range keywordBuckets {
		for _, word := range keywords {
			if strings.Contains(normalized, word) {
				scores[label]++
			}
		}
	}

	best := Neutral
	bestScore := 0
	// Deterministic tie-breaking: the distress categories win over positive
	// so a mixed message is never summarized as upbeat.
	for _, label := range []Label{Negative, Anxious, Positive} {
		if scores[label] > bestScore {
			best = label
			bestScore = scores[label]
		}
	}
	if bestScore == 0 {
		return Result{FinalSentiment: Neutral, Confidence: 0}
	}

	confidence := 0.5 + 0.1*float64(bestScore)
	if confidence > 0.95 {
		confidence = 0.95
	}
	return Result{FinalSentiment: best, Confidence: confidence}
}

// Combine merges per-source results into one overall reading. The strongest
// non-neutral source wins; all-neutral input stays neutral.
func Combine(results ...Result) Result {
	combined := Result{FinalSentiment: Neutral, Confidence: 0}
	for _, r := range results {
		if r.FinalSentiment == Neutral {
			continue
		}
		if r.Confidence > combined.Confidence {
			combined = r
		}
	}
	return combined
}
