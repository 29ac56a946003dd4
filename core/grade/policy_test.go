package grade

import (
	"math"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/etda/school/core"
)

func TestRound1(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0, 0},
		{4.95, 5},
		{4.94, 4.9},
		{2.95, 3},
		{7.25, 7.3},
		{10, 10},
		{math.NaN(), 0},
		{math.Inf(1), 0},
		{math.Inf(-1), 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Round1(tt.in), "Round1(%v)", tt.in)
	}
}

func TestPolicyEvaluate(t *testing.T) {
	tests := []struct {
		name       string
		g1, g2     float64
		wantAvg    float64
		wantStatus Status
	}{
		{"perfect", 10, 10, 10, StatusApproved},
		{"approved boundary", 5, 5, 5, StatusApproved},
		{"rounds up to approved", 4.95, 4.95, 4.95, StatusApproved},
		{"average kept unrounded", 7, 7.5, 7.25, StatusApproved},
		{"recovery", 4, 4.5, 4.25, StatusRecovery},
		{"recovery boundary", 3, 3, 3, StatusRecovery},
		{"rounds up to recovery", 2.95, 2.95, 2.95, StatusRecovery},
		{"failed", 2, 3.5, 2.75, StatusFailed},
		{"zero", 0, 0, 0, StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			avg, status := DefaultPolicy.Evaluate(tt.g1, tt.g2)
			assert.Equal(t, tt.wantAvg, avg)
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}

func TestPolicyClassifyCustomThresholds(t *testing.T) {
	p := Policy{ApprovedMin: 7, RecoveryMin: 5}
	assert.Equal(t, StatusApproved, p.Classify(7))
	assert.Equal(t, StatusRecovery, p.Classify(6.94))
	assert.Equal(t, StatusApproved, p.Classify(6.96))
	assert.Equal(t, StatusRecovery, p.Classify(5))
	assert.Equal(t, StatusFailed, p.Classify(4.9))
}

func TestMean(t *testing.T) {
	_, ok := Mean()
	assert.False(t, ok)

	avg, ok := Mean(5, 6, 8.5)
	assert.True(t, ok)
	assert.Equal(t, 6.5, avg)

	avg, _ = Mean(7.25, 4.25)
	assert.Equal(t, 5.75, avg)
}

func TestScoreValidation(t *testing.T) {
	validate := validator.New()
	_ = validate.RegisterValidation(scoreTag, scoreValidation)

	for _, ok := range []float64{0, 7, 7.5, 7.25, 9.99, 10} {
		assert.NoError(t, validate.Var(ok, scoreTag), "%v", ok)
	}
	for _, bad := range []float64{7.125, 0.001, 9.999} {
		assert.Error(t, validate.Var(bad, scoreTag), "%v", bad)
	}
}

func TestNewPolicy(t *testing.T) {
	assert.Equal(t, DefaultPolicy, NewPolicy(&core.Config{}))
	assert.Equal(t, Policy{ApprovedMin: 7, RecoveryMin: 5}, NewPolicy(&core.Config{Grading: core.GradingConfig{ApprovedMin: 7, RecoveryMin: 5}}))
	assert.Equal(t, Policy{ApprovedMin: 5}, NewPolicy(&core.Config{Grading: core.GradingConfig{ApprovedMin: 5}}))
}
