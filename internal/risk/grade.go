package risk

import "github.com/vladr1050/crypto-long-signals-bot/internal/model"

// Score sums trend strength, volume confirmation, pattern quality and a
// risk/reward bonus of 1 at >= 2R or 0.5 at >= 1.5R.
func Score(trendStrength int, volumeConfirmed bool, patternQuality int, rr float64) float64 {
	score := float64(clamp(trendStrength, 0, 3) + clamp(patternQuality, 0, 3))
	if volumeConfirmed {
		score++
	}
	switch {
	case rr >= 2:
		score += 1
	case rr >= 1.5:
		score += 0.5
	}
	return score
}

// GradeFor maps Score to A (>= 6), B (>= 4) or C.
func GradeFor(trendStrength int, volumeConfirmed bool, patternQuality int, rr float64) model.Grade {
	switch s := Score(trendStrength, volumeConfirmed, patternQuality, rr); {
	case s >= 6:
		return model.GradeA
	case s >= 4:
		return model.GradeB
	default:
		return model.GradeC
	}
}

// PatternQuality maps a trigger count to 1..3.
func PatternQuality(triggers int) int {
	switch {
	case triggers >= 3:
		return 3
	case triggers >= 2:
		return 2
	default:
		return 1
	}
}

// Describe returns the risk level text shown next to a grade.
func Describe(g model.Grade) string {
	switch g {
	case model.GradeA:
		return "Strong - High probability setup with clear trend and volume confirmation"
	case model.GradeB:
		return "Good - Decent setup with average confirmation signals"
	case model.GradeC:
		return "High-risk - Weak confirmation or wide stop loss, use smaller position"
	}
	return "Unknown risk level"
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
