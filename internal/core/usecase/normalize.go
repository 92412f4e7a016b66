package usecase

import "strings"

// minMaxNormalize rescales scores into [0,1]. A set whose scores are all equal
// normalizes to 1 so a single hit is not erased from fusion.
func minMaxNormalize(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}

	minScore := scores[0]
	maxScore := scores[0]
	for _, s := range scores[1:] {
		if s < minScore {
			minScore = s
		}
		if s > maxScore {
			maxScore = s
		}
	}

	out := make([]float64, len(scores))
	rangeScore := maxScore - minScore
	for i, s := range scores {
		if rangeScore <= 0 {
			out[i] = 1
			continue
		}
		out[i] = (s - minScore) / rangeScore
	}
	return out
}

// distanceToSimilarity maps a cosine distance onto [0,1], higher is closer.
func distanceToSimilarity(distance float64) float64 {
	if distance > 1 {
		distance = 1
	}
	return 1 - distance
}

func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

func truncateRunes(text string, max int) (string, bool) {
	runes := []rune(text)
	if len(runes) <= max {
		return text, false
	}
	return string(runes[:max]), true
}
