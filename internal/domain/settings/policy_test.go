package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Policy)
		wantErr bool
	}{
		{"default", func(*Policy) {}, false},
		{"flag negative", func(p *Policy) { p.FlagThreshold = -0.1 }, true},
		{"flag above one", func(p *Policy) { p.FlagThreshold = 1.1 }, true},
		{"block above one", func(p *Policy) { p.BlockThreshold = 1.1 }, true},
		{"flag equals block", func(p *Policy) { p.FlagThreshold = 0.7 }, true},
		{"flag above block", func(p *Policy) { p.FlagThreshold = 0.9 }, true},
		{"zero limit", func(p *Policy) { p.TxLimitAmount = 0 }, true},
		{"negative default balance", func(p *Policy) { p.DefaultUserBalance = -5 }, true},
		{"tight but ordered thresholds", func(p *Policy) { p.FlagThreshold = 0.69 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Default()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsHighRiskLocation(t *testing.T) {
	p := Default()
	assert.True(t, p.IsHighRiskLocation("Unknown"))
	assert.True(t, p.IsHighRiskLocation("Tor-Exit-Node"))
	assert.False(t, p.IsHighRiskLocation("New York"))
	assert.False(t, p.IsHighRiskLocation("unknown"), "matching is case-sensitive")
}
