// Package regression fits the expansion-revenue estimator.
//
// The estimator is ridge-regularized least squares over standardized
// features, solved with a Cholesky factorization of XᵀX + λI. Coefficients are
// reported on the original feature scale so that predictions and attributions
// need no knowledge of the standardization.
package regression

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrDimension is returned when inputs do not agree in shape.
var ErrDimension = errors.New("dimension mismatch")

// Config controls training.
type Config struct {
	// Lambda is the ridge penalty on standardized coefficients.
	Lambda float64 `json:"lambda"`
	// TestFraction is the share of rows held out for evaluation.
	TestFraction float64 `json:"test_fraction"`
	Seed         uint64  `json:"seed"`
}

// SetDefaults applies the pipeline defaults.
func (c *Config) SetDefaults() {
	if c.Lambda == 0 {
		c.Lambda = 1.0
	}
	if c.TestFraction == 0 {
		c.TestFraction = 0.2
	}
	if c.Seed == 0 {
		c.Seed = 42
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Lambda < 0 {
		return fmt.Errorf("lambda must not be negative")
	}
	if c.TestFraction < 0 || c.TestFraction >= 1 {
		return fmt.Errorf("test_fraction must be in [0,1)")
	}
	return nil
}

// Model is a fitted linear estimator. It is serialized as a pipeline artifact.
type Model struct {
	FeatureNames []string  `json:"feature_names"`
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
	// Means are the training feature means used as the attribution baseline.
	Means     []float64 `json:"means"`
	TrainR2   float64   `json:"train_score"`
	TestR2    float64   `json:"test_score"`
	TrainRows int       `json:"train_rows"`
	TestRows  int       `json:"test_rows"`
}

// Predict returns the estimate for one feature vector.
func (m *Model) Predict(x []float64) (float64, error) {
	if len(x) != len(m.Coefficients) {
		return 0, fmt.Errorf("%w: got %d features want %d", ErrDimension, len(x), len(m.Coefficients))
	}
	return m.Intercept + floats.Dot(m.Coefficients, x), nil
}

// PredictAll returns estimates for every row.
func (m *Model) PredictAll(rows [][]float64) ([]float64, error) {
	out := make([]float64, len(rows))
	for i, r := range rows {
		p, err := m.Predict(r)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = p
	}
	return out, nil
}

// ExpectedValue is the prediction at the training means.
func (m *Model) ExpectedValue() float64 {
	return m.Intercept + floats.Dot(m.Coefficients, m.Means)
}

// Train splits rows, fits on the training part and scores both parts.
func Train(cfg Config, names []string, rows [][]float64, y []float64) (*Model, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(rows) != len(y) {
		return nil, fmt.Errorf("%w: %d rows and %d targets", ErrDimension, len(rows), len(y))
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("need at least 2 rows, got %d", len(rows))
	}

	trainIdx, testIdx := split(len(rows), cfg.TestFraction, cfg.Seed)
	xTrain, yTrain := subset(rows, y, trainIdx)
	m, err := Fit(names, xTrain, yTrain, cfg.Lambda)
	if err != nil {
		return nil, err
	}
	m.TrainRows = len(trainIdx)
	m.TestRows = len(testIdx)
	if m.TrainR2, err = m.Score(xTrain, yTrain); err != nil {
		return nil, err
	}
	if len(testIdx) > 0 {
		xTest, yTest := subset(rows, y, testIdx)
		if m.TestR2, err = m.Score(xTest, yTest); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Fit solves the ridge problem on all rows.
func Fit(names []string, rows [][]float64, y []float64, lambda float64) (*Model, error) {
	n := len(rows)
	if n == 0 || n != len(y) {
		return nil, fmt.Errorf("%w: %d rows and %d targets", ErrDimension, n, len(y))
	}
	p := len(rows[0])
	if len(names) != p {
		return nil, fmt.Errorf("%w: %d names for %d features", ErrDimension, len(names), p)
	}

	x := mat.NewDense(n, p, nil)
	for i, r := range rows {
		if len(r) != p {
			return nil, fmt.Errorf("%w: row %d has %d features want %d", ErrDimension, i, len(r), p)
		}
		x.SetRow(i, r)
	}

	means := make([]float64, p)
	scales := make([]float64, p)
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		mat.Col(col, j, x)
		mu, sd := stat.MeanStdDev(col, nil)
		if sd == 0 || math.IsNaN(sd) {
			sd = 1
		}
		means[j], scales[j] = mu, sd
		for i := range col {
			col[i] = (col[i] - mu) / sd
		}
		x.SetCol(j, col)
	}
	yMean := stat.Mean(y, nil)
	yc := mat.NewVecDense(n, nil)
	for i, v := range y {
		yc.SetVec(i, v-yMean)
	}

	var gram mat.SymDense
	gram.SymOuterK(1, x.T())
	for j := 0; j < p; j++ {
		gram.SetSym(j, j, gram.At(j, j)+lambda)
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(&gram); !ok {
		return nil, fmt.Errorf("normal equations are not positive definite; increase lambda")
	}
	var xty, beta mat.VecDense
	xty.MulVec(x.T(), yc)
	if err := chol.SolveVecTo(&beta, &xty); err != nil {
		return nil, fmt.Errorf("solve: %w", err)
	}

	coef := make([]float64, p)
	intercept := yMean
	for j := range coef {
		coef[j] = beta.AtVec(j) / scales[j]
		intercept -= coef[j] * means[j]
	}
	return &Model{
		FeatureNames: append([]string(nil), names...),
		Coefficients: coef,
		Intercept:    intercept,
		Means:        means,
	}, nil
}

// Score returns the coefficient of determination on the given rows.
func (m *Model) Score(rows [][]float64, y []float64) (float64, error) {
	pred, err := m.PredictAll(rows)
	if err != nil {
		return 0, err
	}
	return stat.RSquaredFrom(pred, y, nil), nil
}

// split returns shuffled train and test row indices.
func split(n int, testFraction float64, seed uint64) ([]int, []int) {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	perm := rng.Perm(n)
	nTest := int(math.Round(float64(n) * testFraction))
	if nTest >= n {
		nTest = n - 1
	}
	return perm[nTest:], perm[:nTest]
}

func subset(rows [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	xs := make([][]float64, len(idx))
	ys := make([]float64, len(idx))
	for i, k := range idx {
		xs[i] = rows[k]
		ys[i] = y[k]
	}
	return xs, ys
}
