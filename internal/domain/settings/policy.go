package settings

import "fmt"

// Policy holds the admin-tunable risk configuration. It is stored as a single
// keyed JSONB row and read by every scoring component on each evaluation, so a
// write takes effect on the very next payment without a restart.
type Policy struct {
	TxLimitAmount      float64  `json:"tx_limit_amount"`
	MaxFailedAttempts  int      `json:"max_failed_attempts"`
	FlagThreshold      float64  `json:"flag_threshold"`
	BlockThreshold     float64  `json:"block_threshold"`
	DefaultUserBalance float64  `json:"default_user_balance"`
	HighRiskLocations  []string `json:"high_risk_locations"`

	Velocity VelocityLimits `json:"velocity"`
}

// VelocityLimits bound a sender's rolling-window activity
type VelocityLimits struct {
	MaxAmount1h            float64 `json:"max_amount_1h"`
	MaxAmount24h           float64 `json:"max_amount_24h"`
	MaxCount1h             int     `json:"max_tx_count_1h"`
	MaxCount24h            int     `json:"max_tx_count_24h"`
	MaxUniqueRecipients24h int     `json:"max_unique_recipients_24h"`
}

// Default returns the shipped policy
func Default() Policy {
	return Policy{
		TxLimitAmount:      5000.0,
		MaxFailedAttempts:  3,
		FlagThreshold:      0.4,
		BlockThreshold:     0.7,
		DefaultUserBalance: 2000.0,
		HighRiskLocations:  []string{"Unknown", "High-Risk-Geo", "Tor-Exit-Node", "VPN-Detected"},
		Velocity: VelocityLimits{
			MaxAmount1h:            5000.0,
			MaxAmount24h:           10000.0,
			MaxCount1h:             10,
			MaxCount24h:            50,
			MaxUniqueRecipients24h: 20,
		},
	}
}

// Validate rejects policies that would make the decision mapping ambiguous
func (p Policy) Validate() error {
	if p.FlagThreshold < 0 || p.FlagThreshold > 1 {
		return fmt.Errorf("flag threshold out of range: %f", p.FlagThreshold)
	}
	if p.BlockThreshold < 0 || p.BlockThreshold > 1 {
		return fmt.Errorf("block threshold out of range: %f", p.BlockThreshold)
	}
	if p.FlagThreshold >= p.BlockThreshold {
		return fmt.Errorf("flag threshold %f must be below block threshold %f", p.FlagThreshold, p.BlockThreshold)
	}
	if p.TxLimitAmount <= 0 {
		return fmt.Errorf("transaction limit must be positive")
	}
	if p.DefaultUserBalance < 0 {
		return fmt.Errorf("default balance cannot be negative")
	}
	return nil
}

// IsHighRiskLocation reports whether the declared location is in the
// configured high-risk set
func (p Policy) IsHighRiskLocation(location string) bool {
	for _, l := range p.HighRiskLocations {
		if l == location {
			return true
		}
	}
	return false
}
