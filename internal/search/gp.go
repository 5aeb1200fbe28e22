package search

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const gpJitter = 1e-6

// Candidate length scales; the one with the highest log marginal likelihood
// is kept.
var lengthScales = []float64{0.1, 0.2, 0.35, 0.5, 1, 2}

var errSingular = errors.New("gp: kernel matrix is not positive definite")

// gaussianProcess is a zero-mean GP with a Matérn 5/2 kernel on inputs in
// [0,1]^d and standardized targets.
type gaussianProcess struct {
	x      [][]float64
	chol   mat.Cholesky
	alpha  *mat.VecDense
	scale  float64
	yMean  float64
	yStd   float64
	yBestZ float64
}

func matern52(r, lengthScale float64) float64 {
	s := math.Sqrt(5) * r / lengthScale
	return (1 + s + s*s/3) * math.Exp(-s)
}

func fitGP(x [][]float64, y []float64) (*gaussianProcess, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, errors.New("gp: need matching, non-empty observations")
	}
	mean, std := stat.MeanStdDev(y, nil)
	if std == 0 || math.IsNaN(std) {
		std = 1
	}
	z := make([]float64, len(y))
	for i, v := range y {
		z[i] = (v - mean) / std
	}

	var best *gaussianProcess
	bestLML := math.Inf(-1)
	for _, ls := range lengthScales {
		gp, lml, err := fitWithScale(x, z, ls)
		if err != nil {
			continue
		}
		if lml > bestLML {
			best, bestLML = gp, lml
		}
	}
	if best == nil {
		return nil, errSingular
	}
	best.yMean, best.yStd = mean, std
	best.yBestZ = floats.Max(z)
	return best, nil
}

func fitWithScale(x [][]float64, z []float64, ls float64) (*gaussianProcess, float64, error) {
	n := len(x)
	k := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := matern52(floats.Distance(x[i], x[j], 2), ls)
			if i == j {
				v += gpJitter
			}
			k.SetSym(i, j, v)
		}
	}
	gp := &gaussianProcess{x: x, scale: ls}
	if ok := gp.chol.Factorize(k); !ok {
		return nil, 0, errSingular
	}
	yv := mat.NewVecDense(n, append([]float64(nil), z...))
	gp.alpha = mat.NewVecDense(n, nil)
	if err := gp.chol.SolveVecTo(gp.alpha, yv); err != nil {
		return nil, 0, err
	}
	lml := -0.5*mat.Dot(yv, gp.alpha) - 0.5*gp.chol.LogDet() - 0.5*float64(n)*math.Log(2*math.Pi)
	return gp, lml, nil
}

// predict returns the posterior mean and standard deviation in standardized units.
func (gp *gaussianProcess) predict(x []float64) (float64, float64) {
	n := len(gp.x)
	ks := mat.NewVecDense(n, nil)
	for i := range gp.x {
		ks.SetVec(i, matern52(floats.Distance(gp.x[i], x, 2), gp.scale))
	}
	mu := mat.Dot(ks, gp.alpha)
	v := mat.NewVecDense(n, nil)
	if err := gp.chol.SolveVecTo(v, ks); err != nil {
		return mu, 0
	}
	variance := 1 + gpJitter - mat.Dot(ks, v)
	if variance < 1e-12 {
		variance = 1e-12
	}
	return mu, math.Sqrt(variance)
}
