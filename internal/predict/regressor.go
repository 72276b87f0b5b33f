package predict

import "errors"

// DelayRegressor is a linear regression model over per-line features
// (inventory %, uptime %, worker availability %, defect rate %)
// predicting the historical KPI-impact target. The prediction is
// converted to a delay-risk score by the scorer.
//
// Trained by gradient descent on standardized features; deterministic
// for a given training set.
type DelayRegressor struct {
	weights []float64
	bias    float64
	means   []float64
	stddevs []float64
	fitted  bool
}

const (
	regressorFeatures  = 4
	regressorEpochs    = 300
	regressorLearnRate = 0.05
)

// NewDelayRegressor creates an untrained regressor.
func NewDelayRegressor() *DelayRegressor {
	return &DelayRegressor{}
}

// Fit trains the regressor. features is row-major; targets[i] is the
// observed KPI impact percentage for the row.
func (r *DelayRegressor) Fit(features [][]float64, targets []float64) error {
	if len(features) == 0 || len(features) != len(targets) {
		return errors.New("training set is empty or misaligned")
	}
	for _, row := range features {
		if len(row) != regressorFeatures {
			return errors.New("feature row has wrong width")
		}
	}

	r.means, r.stddevs = standardizeStats(features)
	scaled := applyStandardize(features, r.means, r.stddevs)

	r.weights = make([]float64, regressorFeatures)
	r.bias = 0

	n := float64(len(scaled))
	for epoch := 0; epoch < regressorEpochs; epoch++ {
		gradW := make([]float64, regressorFeatures)
		gradB := 0.0
		for i, row := range scaled {
			pred := dot(r.weights, row) + r.bias
			diff := pred - targets[i]
			for j, x := range row {
				gradW[j] += diff * x
			}
			gradB += diff
		}
		for j := range r.weights {
			r.weights[j] -= regressorLearnRate * gradW[j] / n
		}
		r.bias -= regressorLearnRate * gradB / n
	}

	r.fitted = true
	return nil
}

// Fitted reports whether the regressor has been trained.
func (r *DelayRegressor) Fitted() bool {
	return r != nil && r.fitted
}

// Predict returns the predicted KPI impact percentage for one feature
// row. Returns an error when the model is untrained.
func (r *DelayRegressor) Predict(features []float64) (float64, error) {
	if !r.Fitted() {
		return 0, errors.New("regressor not fitted")
	}
	if len(features) != regressorFeatures {
		return 0, errors.New("feature row has wrong width")
	}
	scaled := make([]float64, regressorFeatures)
	for i, v := range features {
		scaled[i] = (v - r.means[i]) / r.stddevs[i]
	}
	return dot(r.weights, scaled) + r.bias, nil
}
