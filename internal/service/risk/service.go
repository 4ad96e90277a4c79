package risk

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	domainerrors "github.com/jmorland/securepay-backend/internal/domain/errors"
	"github.com/jmorland/securepay-backend/internal/domain/payment"
	"github.com/jmorland/securepay-backend/internal/domain/settings"
	"github.com/jmorland/securepay-backend/internal/service/velocity"
)

const (
	// Blend weights for the final score.
	mlWeight   = 0.7
	ruleWeight = 0.3
)

// Input is everything the scoring pipeline needs about one candidate
// payment. The caller resolves sender state (balance, age, history) before
// evaluation so the pipeline itself stays free of storage access.
type Input struct {
	SenderID    uuid.UUID
	RecipientID uuid.UUID

	Amount   float64
	Currency string

	Location string
	Device   string

	FailedAttempts int
	SenderBalance  float64
	AccountAge     time.Duration
	RecipientIsNew bool

	// HighRiskLocation is resolved against policy by Evaluate; callers may
	// leave it false.
	HighRiskLocation bool

	// HistoryAmounts holds the sender's most recent settled amounts, up to
	// ten, for the typical-pattern rule.
	HistoryAmounts []float64

	Velocity velocity.Stats

	Now time.Time
}

// Assessment is the outcome of scoring one payment.
type Assessment struct {
	MLProbability float64
	RuleScore     float64
	FinalScore    float64
	Outcome       payment.Status
	RiskFactors   []string
	Indicators    map[string]bool

	// RuleOnly is set when the model was unavailable and the decision fell
	// back to the heuristic score alone.
	RuleOnly bool
}

// PolicyReader yields the current risk policy. Reads happen on every
// evaluation so admin changes apply immediately.
type PolicyReader interface {
	Policy(ctx context.Context) (settings.Policy, error)
}

// Service blends the model probability with the rule score and maps the
// result onto a payment outcome using the live policy thresholds.
type Service struct {
	scorer Scorer
	rules  *RuleEngine
	policy PolicyReader
	logger *slog.Logger
}

func NewService(scorer Scorer, policy PolicyReader, logger *slog.Logger) *Service {
	return &Service{
		scorer: scorer,
		rules:  NewRuleEngine(),
		policy: policy,
		logger: logger,
	}
}

// Evaluate scores one payment. A scorer failure degrades to a rule-only
// decision rather than failing the payment.
func (s *Service) Evaluate(ctx context.Context, in Input) (*Assessment, error) {
	defer func(start time.Time) { scoringDuration.Observe(time.Since(start).Seconds()) }(time.Now())

	pol, err := s.policy.Policy(ctx)
	if err != nil {
		return nil, err
	}
	in.HighRiskLocation = pol.IsHighRiskLocation(in.Location)
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}

	ruleRes := s.rules.Evaluate(in, pol)

	a := &Assessment{
		RuleScore:   ruleRes.Score,
		RiskFactors: ruleRes.Factors,
		Indicators:  ruleRes.Indicators,
	}

	prob, err := s.scorer.Probability(extractFeatures(in))
	if err != nil {
		scoreErr := domainerrors.NewScoringUnavailableError("predictive scorer failed").WithCause(err)
		s.logger.WarnContext(ctx, "model scoring unavailable, using rule score only",
			"error", scoreErr, "sender_id", in.SenderID)
		a.RuleOnly = true
		a.FinalScore = ruleRes.Score
	} else {
		a.MLProbability = prob
		a.FinalScore = mlWeight*prob + ruleWeight*ruleRes.Score
	}

	switch {
	case a.FinalScore >= pol.BlockThreshold:
		a.Outcome = payment.StatusBlocked
	case a.FinalScore >= pol.FlagThreshold:
		a.Outcome = payment.StatusFlagged
	default:
		a.Outcome = payment.StatusSettled
	}

	s.logger.DebugContext(ctx, "payment scored",
		"sender_id", in.SenderID,
		"recipient_id", in.RecipientID,
		"amount", in.Amount,
		"ml_probability", a.MLProbability,
		"rule_score", a.RuleScore,
		"final_score", a.FinalScore,
		"outcome", string(a.Outcome),
		"rule_only", a.RuleOnly,
	)
	return a, nil
}
