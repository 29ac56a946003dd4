package grade

import (
	"math"

	"github.com/etda/school/core"
)

type Status string

const (
	StatusApproved Status = "approved"
	StatusRecovery Status = "recovery"
	StatusFailed   Status = "failed"
)

var AllStatuses = []Status{StatusApproved, StatusRecovery, StatusFailed}

// Policy holds the minimum averages of each status.
// It is the only place where averages are classified.
type Policy struct {
	ApprovedMin float64
	RecoveryMin float64
}

var DefaultPolicy = Policy{ApprovedMin: 5, RecoveryMin: 3}

// NewPolicy builds the policy of conf.Grading, which core.NewConfig has validated.
// An unset grading section (both minimums zero) gets DefaultPolicy.
func NewPolicy(conf *core.Config) Policy {
	if conf.Grading == (core.GradingConfig{}) {
		return DefaultPolicy
	}
	return Policy{ApprovedMin: conf.Grading.ApprovedMin, RecoveryMin: conf.Grading.RecoveryMin}
}

// Round1 rounds x half up to one decimal place. Non-finite values round to 0.
func Round1(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return math.Floor(x*10+0.5) / 10
}

// Average returns the mean of the two bimester grades. It is stored unrounded.
func Average(g1, g2 float64) float64 {
	return (g1 + g2) / 2
}

// Mean returns the mean of vals, and false when vals is empty.
func Mean(vals ...float64) (float64, bool) {
	if len(vals) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals)), true
}

// Classify compares avg, rounded to one decimal, with the policy minimums.
func (p Policy) Classify(avg float64) Status {
	avg = Round1(avg)
	switch {
	case avg >= p.ApprovedMin:
		return StatusApproved
	case avg >= p.RecoveryMin:
		return StatusRecovery
	default:
		return StatusFailed
	}
}

// Evaluate computes the average of g1 and g2 and its status.
func (p Policy) Evaluate(g1, g2 float64) (float64, Status) {
	avg := Average(g1, g2)
	return avg, p.Classify(avg)
}
