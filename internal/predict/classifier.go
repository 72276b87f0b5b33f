package predict

import (
	"errors"
	"math"
	"math/rand"
)

// BreakdownClassifier is a logistic regression model over per-line
// telemetry features (uptime %, worker availability %, defect rate %,
// energy kWh) predicting the probability of a maintenance alert.
//
// Trained by mini-batch free gradient descent on standardized features.
// The random source is seeded so repeated training on the same data
// produces identical weights.
type BreakdownClassifier struct {
	weights []float64
	bias    float64
	means   []float64
	stddevs []float64
	fitted  bool
	rng     *rand.Rand
}

const (
	classifierFeatures  = 4
	classifierEpochs    = 200
	classifierLearnRate = 0.1
)

// NewBreakdownClassifier creates an untrained classifier with a fixed
// seed for deterministic training.
func NewBreakdownClassifier(seed int64) *BreakdownClassifier {
	return &BreakdownClassifier{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Fit trains the classifier. features is row-major, one row per labeled
// observation; labels[i] is true when the row carried a maintenance
// alert.
func (c *BreakdownClassifier) Fit(features [][]float64, labels []bool) error {
	if len(features) == 0 || len(features) != len(labels) {
		return errors.New("training set is empty or misaligned")
	}
	for _, row := range features {
		if len(row) != classifierFeatures {
			return errors.New("feature row has wrong width")
		}
	}

	c.means, c.stddevs = standardizeStats(features)
	scaled := applyStandardize(features, c.means, c.stddevs)

	c.weights = make([]float64, classifierFeatures)
	for i := range c.weights {
		c.weights[i] = c.rng.Float64()*0.02 - 0.01
	}
	c.bias = 0

	n := float64(len(scaled))
	for epoch := 0; epoch < classifierEpochs; epoch++ {
		gradW := make([]float64, classifierFeatures)
		gradB := 0.0
		for i, row := range scaled {
			y := 0.0
			if labels[i] {
				y = 1.0
			}
			p := sigmoid(dot(c.weights, row) + c.bias)
			diff := p - y
			for j, x := range row {
				gradW[j] += diff * x
			}
			gradB += diff
		}
		for j := range c.weights {
			c.weights[j] -= classifierLearnRate * gradW[j] / n
		}
		c.bias -= classifierLearnRate * gradB / n
	}

	c.fitted = true
	return nil
}

// Fitted reports whether the classifier has been trained.
func (c *BreakdownClassifier) Fitted() bool {
	return c != nil && c.fitted
}

// PredictProb returns the maintenance-alert probability for one feature
// row. Returns an error when the model is untrained; callers substitute
// the deterministic fallback in that case.
func (c *BreakdownClassifier) PredictProb(features []float64) (float64, error) {
	if !c.Fitted() {
		return 0, errors.New("classifier not fitted")
	}
	if len(features) != classifierFeatures {
		return 0, errors.New("feature row has wrong width")
	}
	scaled := make([]float64, classifierFeatures)
	for i, v := range features {
		scaled[i] = (v - c.means[i]) / c.stddevs[i]
	}
	return sigmoid(dot(c.weights, scaled) + c.bias), nil
}

// ─── Shared numeric helpers ───

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// standardizeStats computes per-column mean and stddev. Columns with no
// spread get stddev 1 so division is always safe.
func standardizeStats(rows [][]float64) (means, stddevs []float64) {
	cols := len(rows[0])
	means = make([]float64, cols)
	stddevs = make([]float64, cols)
	n := float64(len(rows))

	for _, row := range rows {
		for j, v := range row {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= n
	}
	for _, row := range rows {
		for j, v := range row {
			d := v - means[j]
			stddevs[j] += d * d
		}
	}
	for j := range stddevs {
		stddevs[j] = math.Sqrt(stddevs[j] / n)
		if stddevs[j] == 0 {
			stddevs[j] = 1
		}
	}
	return means, stddevs
}

func applyStandardize(rows [][]float64, means, stddevs []float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - means[j]) / stddevs[j]
		}
		out[i] = scaled
	}
	return out
}
