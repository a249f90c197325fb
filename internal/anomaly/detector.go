package anomaly

import (
	"time"

	"github.com/dingeii/binance-signal-bot/internal/netflow"
)

// Reason names the rule that raised an alert.
type Reason string

const (
	ReasonAbsoluteThreshold  Reason = "absolute_threshold"
	ReasonRelativeMultiplier Reason = "relative_multiplier"
)

const (
	DefaultAbsoluteThreshold = 10000.0
	DefaultMultiplier        = 3.0
)

// Alert is a net-flow spike for one symbol in one cycle.
type Alert struct {
	Symbol          string
	CurrentValue    float64
	BaselineAverage float64
	HasBaseline     bool
	Reason          Reason
	ObservedAt      time.Time
}

// Detector flags positive net-flow excursions. Sell-side (negative) spikes
// are not evaluated.
type Detector struct {
	AbsoluteThreshold float64
	Multiplier        float64
}

// NewDetector returns a Detector, substituting defaults for non-positive values.
func NewDetector(absolute, multiplier float64) Detector {
	if absolute <= 0 {
		absolute = DefaultAbsoluteThreshold
	}
	if multiplier <= 0 {
		multiplier = DefaultMultiplier
	}
	return Detector{AbsoluteThreshold: absolute, Multiplier: multiplier}
}

// Evaluate checks the absolute threshold first, then the baseline multiple.
// hasBaseline=false disables only the relative rule.
func (d Detector) Evaluate(sample netflow.Sample, avg float64, hasBaseline bool) (Alert, bool) {
	alert := Alert{
		Symbol:       sample.Symbol,
		CurrentValue: sample.Value,
		HasBaseline:  hasBaseline,
		ObservedAt:   sample.ObservedAt,
	}
	if hasBaseline {
		alert.BaselineAverage = avg
	}

	switch {
	case sample.Value > d.AbsoluteThreshold:
		alert.Reason = ReasonAbsoluteThreshold
	case hasBaseline && sample.Value > avg*d.Multiplier:
		alert.Reason = ReasonRelativeMultiplier
	default:
		return Alert{}, false
	}
	return alert, true
}
