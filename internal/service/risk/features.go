package risk

import (
	"math"
	"time"
)

// featureCount is the fixed dimensionality of the model input.
const featureCount = 13

// Features is the model-facing view of a payment. Order matters: the trained
// weights are positional, so any change here must be mirrored in the synthetic
// training set.
type Features struct {
	Amount             float64
	Hour               float64
	DayOfWeek          float64
	FailedAttempts     float64
	UnusualLocation    float64
	DeviceRisk         float64
	AmountVelocity1h   float64
	AmountVelocity24h  float64
	TxCount1h          float64
	TxCount24h         float64
	RecipientNew       float64
	SenderBalanceRatio float64
	RoundAmount        float64
}

func (f Features) vector() [featureCount]float64 {
	return [featureCount]float64{
		f.Amount,
		f.Hour,
		f.DayOfWeek,
		f.FailedAttempts,
		f.UnusualLocation,
		f.DeviceRisk,
		f.AmountVelocity1h,
		f.AmountVelocity24h,
		f.TxCount1h,
		f.TxCount24h,
		f.RecipientNew,
		f.SenderBalanceRatio,
		f.RoundAmount,
	}
}

// extractFeatures flattens a scoring input into the model feature vector.
func extractFeatures(in Input) Features {
	f := Features{
		Amount:            in.Amount,
		Hour:              float64(in.Now.Hour()),
		DayOfWeek:         float64(weekdayIndex(in.Now)),
		FailedAttempts:    float64(in.FailedAttempts),
		AmountVelocity1h:  in.Velocity.Amount1h,
		AmountVelocity24h: in.Velocity.Amount24h,
		TxCount1h:         float64(in.Velocity.Count1h),
		TxCount24h:        float64(in.Velocity.Count24h),
	}
	if in.Location == "Unknown" || in.HighRiskLocation {
		f.UnusualLocation = 1
	}
	if suspiciousDevice(in.Device) {
		f.DeviceRisk = 1
	}
	if in.RecipientIsNew {
		f.RecipientNew = 1
	}
	if in.SenderBalance > 0 {
		f.SenderBalanceRatio = math.Min(in.Amount/in.SenderBalance, 1)
	} else {
		f.SenderBalanceRatio = 1
	}
	if in.Amount >= 100 && math.Mod(in.Amount, 100) == 0 {
		f.RoundAmount = 1
	}
	return f
}

// weekdayIndex maps time.Weekday (Sunday=0) onto a Monday=0 index so the
// weekend encoding matches the training distribution.
func weekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
