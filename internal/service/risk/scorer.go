package risk

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
)

// Scorer produces a fraud probability in [0, 1] for a feature vector.
// Implementations must be safe for concurrent use.
type Scorer interface {
	Probability(f Features) (float64, error)
}

const (
	trainSeed      = 42
	normalSamples  = 2000
	fraudSamples   = 500
	trainEpochs    = 300
	trainRate      = 0.1
	predictEpsilon = 1e-9
)

// LogisticScorer is a logistic-regression model trained once, lazily, on a
// deterministic synthetic population. The same binary always produces the
// same probability for the same input, which keeps scoring reproducible
// across replicas without a shared model store.
type LogisticScorer struct {
	once sync.Once

	weights [featureCount]float64
	bias    float64
	mean    [featureCount]float64
	std     [featureCount]float64
	initErr error
}

// NewLogisticScorer returns an untrained scorer. Training happens on the
// first Probability call and takes a few milliseconds.
func NewLogisticScorer() *LogisticScorer {
	return &LogisticScorer{}
}

// Probability implements Scorer.
func (s *LogisticScorer) Probability(f Features) (float64, error) {
	s.once.Do(s.train)
	if s.initErr != nil {
		return 0, s.initErr
	}

	z := s.bias
	v := f.vector()
	for i := 0; i < featureCount; i++ {
		z += s.weights[i] * (v[i] - s.mean[i]) / s.std[i]
	}
	return sigmoid(z), nil
}

func (s *LogisticScorer) train() {
	rng := rand.New(rand.NewSource(trainSeed))

	samples := make([][featureCount]float64, 0, normalSamples+fraudSamples)
	labels := make([]float64, 0, normalSamples+fraudSamples)
	for i := 0; i < normalSamples; i++ {
		samples = append(samples, synthNormal(rng))
		labels = append(labels, 0)
	}
	for i := 0; i < fraudSamples; i++ {
		samples = append(samples, synthFraud(rng))
		labels = append(labels, 1)
	}

	// Per-feature standardization over the full training set.
	n := float64(len(samples))
	for j := 0; j < featureCount; j++ {
		var sum float64
		for _, x := range samples {
			sum += x[j]
		}
		s.mean[j] = sum / n

		var sq float64
		for _, x := range samples {
			d := x[j] - s.mean[j]
			sq += d * d
		}
		s.std[j] = math.Sqrt(sq / n)
		if s.std[j] < predictEpsilon {
			s.std[j] = 1
		}
	}
	for i := range samples {
		for j := 0; j < featureCount; j++ {
			samples[i][j] = (samples[i][j] - s.mean[j]) / s.std[j]
		}
	}

	// Full-batch gradient descent on the log loss.
	for epoch := 0; epoch < trainEpochs; epoch++ {
		var gradB float64
		var gradW [featureCount]float64
		for i, x := range samples {
			z := s.bias
			for j := 0; j < featureCount; j++ {
				z += s.weights[j] * x[j]
			}
			err := sigmoid(z) - labels[i]
			gradB += err
			for j := 0; j < featureCount; j++ {
				gradW[j] += err * x[j]
			}
		}
		s.bias -= trainRate * gradB / n
		for j := 0; j < featureCount; j++ {
			s.weights[j] -= trainRate * gradW[j] / n
		}
	}

	for j := 0; j < featureCount; j++ {
		if math.IsNaN(s.weights[j]) || math.IsInf(s.weights[j], 0) {
			s.initErr = fmt.Errorf("risk: model training diverged at feature %d", j)
			return
		}
	}
}

// synthNormal draws one legitimate-payment feature vector.
func synthNormal(rng *rand.Rand) [featureCount]float64 {
	f := Features{
		Amount:             math.Exp(rng.NormFloat64()*1.0 + 4.0),
		Hour:               float64(8 + rng.Intn(14)),
		DayOfWeek:          float64(rng.Intn(7)),
		FailedAttempts:     float64(poisson(rng, 0.1)),
		AmountVelocity1h:   rng.ExpFloat64() * 50,
		AmountVelocity24h:  rng.ExpFloat64() * 200,
		TxCount1h:          float64(poisson(rng, 0.5)),
		TxCount24h:         float64(poisson(rng, 2)),
		SenderBalanceRatio: rng.Float64() * 0.3,
	}
	f.UnusualLocation = bernoulli(rng, 0.05)
	f.DeviceRisk = bernoulli(rng, 0.02)
	f.RecipientNew = bernoulli(rng, 0.3)
	f.RoundAmount = bernoulli(rng, 0.1)
	return f.vector()
}

// synthFraud draws one fraudulent-payment feature vector: larger or micro
// amounts, night hours, risky locations and devices, hot velocity.
func synthFraud(rng *rand.Rand) [featureCount]float64 {
	f := Features{
		Amount:             math.Exp(rng.NormFloat64()*1.5 + 6.0),
		Hour:               float64(rng.Intn(6)),
		DayOfWeek:          float64(rng.Intn(7)),
		FailedAttempts:     float64(poisson(rng, 2)),
		AmountVelocity1h:   rng.ExpFloat64() * 800,
		AmountVelocity24h:  rng.ExpFloat64() * 3000,
		TxCount1h:          float64(poisson(rng, 3)),
		TxCount24h:         float64(poisson(rng, 8)),
		SenderBalanceRatio: 0.3 + rng.Float64()*0.7,
	}
	if rng.Float64() < 0.2 {
		// Card-testing micro-transactions.
		f.Amount = rng.Float64()
	}
	if rng.Float64() < 0.15 {
		f.Hour = 23
	}
	f.UnusualLocation = bernoulli(rng, 0.6)
	f.DeviceRisk = bernoulli(rng, 0.5)
	f.RecipientNew = bernoulli(rng, 0.9)
	f.RoundAmount = bernoulli(rng, 0.4)
	return f.vector()
}

func bernoulli(rng *rand.Rand, p float64) float64 {
	if rng.Float64() < p {
		return 1
	}
	return 0
}

// poisson draws via Knuth's multiplication method; lambdas here are small.
func poisson(rng *rand.Rand, lambda float64) int {
	l := math.Exp(-lambda)
	k := 0
	p := 1.0
	for {
		p *= rng.Float64()
		if p <= l {
			return k
		}
		k++
	}
}

func sigmoid(z float64) float64 {
	if z < -35 {
		return predictEpsilon
	}
	if z > 35 {
		return 1 - predictEpsilon
	}
	return 1 / (1 + math.Exp(-z))
}
