package risk

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jmorland/securepay-backend/internal/domain/settings"
)

// suspiciousDeviceKeywords are matched case-insensitively as substrings of
// the declared device string.
var suspiciousDeviceKeywords = []string{
	"bot", "headless", "automation", "emulator", "selenium", "phantom",
}

func suspiciousDevice(device string) bool {
	d := strings.ToLower(device)
	for _, kw := range suspiciousDeviceKeywords {
		if strings.Contains(d, kw) {
			return true
		}
	}
	return false
}

func matchedDeviceKeywords(device string) []string {
	d := strings.ToLower(device)
	var hits []string
	for _, kw := range suspiciousDeviceKeywords {
		if strings.Contains(d, kw) {
			hits = append(hits, kw)
		}
	}
	return hits
}

// RuleEngine scores a payment against the static heuristic rule set. Each
// triggered rule adds its weight and appends a human-readable factor; the
// total is capped at 1.0. Rules are evaluated in a fixed order so the factor
// list is stable for identical inputs.
type RuleEngine struct{}

func NewRuleEngine() *RuleEngine {
	return &RuleEngine{}
}

// RuleResult carries the additive score, the explanation strings shown to
// investigators, and boolean indicators persisted with the transaction.
type RuleResult struct {
	Score      float64
	Factors    []string
	Indicators map[string]bool
}

// Evaluate applies every rule to the input under the given policy.
func (e *RuleEngine) Evaluate(in Input, pol settings.Policy) RuleResult {
	var score float64
	var factors []string
	indicators := map[string]bool{
		"high_amount":       false,
		"unusual_location":  false,
		"suspicious_device": false,
		"round_amount":      false,
		"unusual_time":      false,
	}

	add := func(w float64, factor string) {
		score += w
		factors = append(factors, factor)
	}

	// Amount rules. The over-limit and over-1000 rules are exclusive; the
	// round and micro patterns stack on top.
	switch {
	case in.Amount > pol.TxLimitAmount:
		add(0.35, fmt.Sprintf("Large transaction amount exceeds $%.0f limit", pol.TxLimitAmount))
		indicators["high_amount"] = true
	case in.Amount > 1000:
		add(0.20, "Significant transaction amount over $1,000")
	}
	if in.Amount >= 500 && math.Mod(in.Amount, 100) == 0 {
		add(0.25, "Round amount pattern detected (potential manual fraud)")
		indicators["round_amount"] = true
	}
	if in.Amount > 0 && in.Amount < 1.0 {
		add(0.40, "Micro-transaction pattern (potential card testing)")
	}

	if pol.IsHighRiskLocation(in.Location) {
		add(0.30, fmt.Sprintf("High-risk geographic location: %s", in.Location))
		indicators["unusual_location"] = true
	}

	if hits := matchedDeviceKeywords(in.Device); len(hits) > 0 {
		add(0.30, fmt.Sprintf("Suspicious device indicators: %s", strings.Join(hits, ", ")))
		indicators["suspicious_device"] = true
	}

	if in.FailedAttempts > 0 {
		w := math.Min(0.20, float64(in.FailedAttempts)*0.05)
		add(w, fmt.Sprintf("Multiple authentication attempts: %d", in.FailedAttempts))
	}

	// Velocity rules use the sender's rolling 24h window; the amount rule
	// counts the candidate payment itself.
	if in.Velocity.Count24h > 5 {
		add(0.25, fmt.Sprintf("High transaction velocity: %d transactions in 24 hours", in.Velocity.Count24h))
	}
	if in.Velocity.Amount24h+in.Amount > 10000 {
		add(0.20, fmt.Sprintf("High amount velocity: $%.2f in 24 hours", in.Velocity.Amount24h+in.Amount))
	}

	if avg := average(in.HistoryAmounts); avg > 0 && in.Amount > avg*3 {
		add(0.15, "Transaction amount significantly higher than user's typical pattern")
	}

	switch {
	case in.AccountAge < 7*24*time.Hour:
		add(0.20, "New account (less than 7 days old)")
	case in.AccountAge < 30*24*time.Hour:
		add(0.10, "Recently created account (less than 30 days)")
	}

	hour := in.Now.Hour()
	if hour < 6 || hour > 23 {
		add(0.15, "Transaction during unusual hours (night/early morning)")
		indicators["unusual_time"] = true
	}
	if isWeekend(in.Now) {
		add(0.05, "Weekend transaction pattern")
	}

	return RuleResult{
		Score:      math.Min(score, 1.0),
		Factors:    factors,
		Indicators: indicators,
	}
}

func average(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
