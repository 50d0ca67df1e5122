package model

import (
	"fmt"

	"golang.org/x/time/rate"
)

// RatePreset is a named token-bucket configuration sized against a
// 1000 requests/minute provider tier.
type RatePreset string

const (
	// RateConservative runs at ~50% of the tier: 8.3 req/s, burst 25.
	RateConservative RatePreset = "conservative"
	// RateModerate runs at ~70%: 11.7 req/s, burst 35.
	RateModerate RatePreset = "moderate"
	// RateRelaxed runs at ~85%: 14.2 req/s, burst 45.
	RateRelaxed RatePreset = "relaxed"
	// RateGeminiPro fits the 150 RPM Gemini Pro tier: 2 req/s, burst 10.
	RateGeminiPro RatePreset = "gemini_pro"
)

type rateSpec struct {
	perSecond float64
	burst     int
}

var ratePresets = map[RatePreset]rateSpec{
	RateConservative: {8.3, 25},
	RateModerate:     {11.7, 35},
	RateRelaxed:      {14.2, 45},
	RateGeminiPro:    {2.0, 10},
}

// NewLimiter returns a fresh limiter for the preset.
func NewLimiter(p RatePreset) (*rate.Limiter, error) {
	spec, ok := ratePresets[p]
	if !ok {
		return nil, fmt.Errorf("unknown rate preset %q", p)
	}
	return rate.NewLimiter(rate.Limit(spec.perSecond), spec.burst), nil
}

// MustLimiter is NewLimiter for the built-in presets.
func MustLimiter(p RatePreset) *rate.Limiter {
	l, err := NewLimiter(p)
	if err != nil {
		panic(err)
	}
	return l
}
