package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGradingConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		conf    GradingConfig
		wantErr string
	}{
		{name: "defaults", conf: GradingConfig{ApprovedMin: 5, RecoveryMin: 3}},
		{name: "no recovery band", conf: GradingConfig{ApprovedMin: 6, RecoveryMin: 6}},
		{name: "recovery from zero", conf: GradingConfig{ApprovedMin: 5}},
		{
			name:    "approval below recovery",
			conf:    GradingConfig{ApprovedMin: 3, RecoveryMin: 5},
			wantErr: "approvedMin (3) cannot be lower than recoveryMin (5)",
		},
		{
			name:    "above the grade scale",
			conf:    GradingConfig{ApprovedMin: 11, RecoveryMin: 5},
			wantErr: "thresholds must be within 0 and 10 (approvedMin=11, recoveryMin=5)",
		},
		{
			name:    "negative",
			conf:    GradingConfig{ApprovedMin: 5, RecoveryMin: -1},
			wantErr: "thresholds must be within 0 and 10 (approvedMin=5, recoveryMin=-1)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.conf.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.EqualError(t, err, tt.wantErr)
			}
		})
	}
}
