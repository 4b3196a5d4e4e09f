package provider

import (
	"math"
	"strings"
)

// WeatherSeverityScore is the one shared formula used by both the live
// parser and the emulator to rank forecast slots:
//
//	1.8*precip_mm + 2.5*clamp(precip_prob,0,1) + max(0,wind_kph-25)/8 + condition_bonus
//
// condition_bonus is 8 for thunder/hail/tornado/storm, 5 for freezing/
// blizzard/sleet/snow/heavy rain, 3 for rain, 2 for fog, 0 otherwise.
func WeatherSeverityScore(condition string, precipMM, windKPH, precipProb *float64) float64 {
	score := 0.0
	if precipMM != nil {
		score += math.Max(0, *precipMM) * 1.8
	}
	if precipProb != nil {
		p := *precipProb
		if p > 1.0 {
			p /= 100.0
		}
		p = math.Max(0, math.Min(1, p))
		score += p * 2.5
	}
	if windKPH != nil {
		score += math.Max(0, *windKPH-25.0) / 8.0
	}

	normalized := strings.ToLower(condition)
	switch {
	case containsAny(normalized, "thunder", "hail", "tornado", "storm"):
		score += 8.0
	case containsAny(normalized, "freezing", "blizzard", "sleet", "snow"):
		score += 5.0
	case strings.Contains(normalized, "heavy rain"):
		score += 5.0
	case strings.Contains(normalized, "rain"):
		score += 3.0
	case strings.Contains(normalized, "fog"):
		score += 2.0
	}

	return round3(score)
}

func containsAny(s string, tokens ...string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// CongestionLevel buckets a jam factor into low/medium/high and returns ""
// when jam factor is missing; DeriveJamFactor computes a jam factor from
// current/free-flow speed.
func CongestionLevel(jamFactor *float64) string {
	if jamFactor == nil {
		return ""
	}
	switch {
	case *jamFactor < 4.0:
		return "low"
	case *jamFactor < 7.0:
		return "medium"
	default:
		return "high"
	}
}

// DeriveJamFactor computes jam factor from current and free-flow speed
// when the provider did not supply one directly.
func DeriveJamFactor(speedKPH, freeFlowKPH float64) float64 {
	if freeFlowKPH <= 0 {
		return 0
	}
	return math.Max(0, math.Min(10, (1.0-(speedKPH/freeFlowKPH))*10.0))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
