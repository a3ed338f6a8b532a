package model

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// param is one named weight tensor with its gradient and Adam moments.
type param struct {
	name string
	w    []float64
	g    []float64
	m    []float64
	v    []float64
}

func newParam(name string, n int) *param {
	return &param{
		name: name,
		w:    make([]float64, n),
		g:    make([]float64, n),
		m:    make([]float64, n),
		v:    make([]float64, n),
	}
}

// glorot fills w uniformly in +-sqrt(6/(fanIn+fanOut)).
func (p *param) glorot(rng *rand.Rand, fanIn, fanOut int) *param {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	for i := range p.w {
		p.w[i] = (rng.Float64()*2 - 1) * limit
	}
	return p
}

func (p *param) fill(v float64) *param {
	for i := range p.w {
		p.w[i] = v
	}
	return p
}

func zeroGrads(ps []*param) {
	for _, p := range ps {
		for i := range p.g {
			p.g[i] = 0
		}
	}
}

// clipGrads rescales all gradients so their global L2 norm is at most maxNorm.
func clipGrads(ps []*param, maxNorm float64) {
	if maxNorm <= 0 {
		return
	}
	var sq float64
	for _, p := range ps {
		sq += floats.Dot(p.g, p.g)
	}
	norm := math.Sqrt(sq)
	if norm <= maxNorm || norm == 0 {
		return
	}
	scale := maxNorm / norm
	for _, p := range ps {
		floats.Scale(scale, p.g)
	}
}

// adam is the optimizer with the usual Keras defaults.
type adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64
	t     int
}

func newAdam(lr float64) *adam {
	return &adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-7}
}

func (a *adam) step(ps []*param) {
	a.t++
	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))
	for _, p := range ps {
		for i, g := range p.g {
			p.m[i] = a.beta1*p.m[i] + (1-a.beta1)*g
			p.v[i] = a.beta2*p.v[i] + (1-a.beta2)*g*g
			mh := p.m[i] / c1
			vh := p.v[i] / c2
			p.w[i] -= a.lr * mh / (math.Sqrt(vh) + a.eps)
		}
	}
}

func snapshot(ps []*param) [][]float64 {
	out := make([][]float64, len(ps))
	for i, p := range ps {
		out[i] = append([]float64(nil), p.w...)
	}
	return out
}

func restore(ps []*param, snap [][]float64) {
	for i, p := range ps {
		copy(p.w, snap[i])
	}
}

// Row-major helpers. A matrix with rows r and cols c is a flat slice of r*c.

// matVec sets out = W x.
func matVec(out, w []float64, cols int, x []float64) {
	for r := range out {
		out[r] = floats.Dot(w[r*cols:(r+1)*cols], x)
	}
}

// matVecAdd adds W x to out.
func matVecAdd(out, w []float64, cols int, x []float64) {
	for r := range out {
		out[r] += floats.Dot(w[r*cols:(r+1)*cols], x)
	}
}

// matTVecAdd adds W^T dy to dx.
func matTVecAdd(dx, w []float64, cols int, dy []float64) {
	for r, d := range dy {
		if d == 0 {
			continue
		}
		floats.AddScaled(dx, d, w[r*cols:(r+1)*cols])
	}
}

// outerAdd adds dy x^T to gw.
func outerAdd(gw []float64, cols int, dy, x []float64) {
	for r, d := range dy {
		if d == 0 {
			continue
		}
		floats.AddScaled(gw[r*cols:(r+1)*cols], d, x)
	}
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// dropoutMask returns an inverted-dropout mask, or nil when inactive.
func dropoutMask(n int, rate float64, train bool, rng *rand.Rand) []float64 {
	if !train || rate <= 0 || rng == nil {
		return nil
	}
	keep := 1 - rate
	mask := make([]float64, n)
	for i := range mask {
		if rng.Float64() < keep {
			mask[i] = 1 / keep
		}
	}
	return mask
}

func applyMask(x, mask []float64) []float64 {
	if mask == nil {
		return x
	}
	out := make([]float64, len(x))
	floats.MulTo(out, x, mask)
	return out
}
