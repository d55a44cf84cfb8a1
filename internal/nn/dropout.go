package nn

import "math/rand"

// Dropout zeroes inputs with probability rate during training and scales the
// survivors by 1/(1-rate). It is the identity at inference.
type Dropout struct {
	rate  float64
	width int
	rng   *rand.Rand

	mask [][]float64
}

func NewDropout(width int, rate float64, rng *rand.Rand) *Dropout {
	return &Dropout{rate: rate, width: width, rng: rng}
}

func (d *Dropout) Params() []*Param {
	return nil
}

func (d *Dropout) Spec() LayerSpec {
	return LayerSpec{Kind: KindDropout, Rate: d.rate}
}

func (d *Dropout) OutputWidth() int {
	return d.width
}

func (d *Dropout) Forward(xs [][]float64, training bool) [][]float64 {
	if !training || d.rate <= 0 {
		d.mask = nil
		return xs
	}

	keep := 1 - d.rate
	d.mask = make([][]float64, len(xs))
	out := make([][]float64, len(xs))
	for t, x := range xs {
		m := make([]float64, len(x))
		y := make([]float64, len(x))
		for k, v := range x {
			if d.rng.Float64() < keep {
				m[k] = 1 / keep
				y[k] = v * m[k]
			}
		}
		d.mask[t] = m
		out[t] = y
	}
	return out
}

func (d *Dropout) Backward(dys [][]float64) [][]float64 {
	if d.mask == nil {
		return dys
	}

	dxs := make([][]float64, len(dys))
	for t, dy := range dys {
		dx := make([]float64, len(dy))
		for k, v := range dy {
			dx[k] = v * d.mask[t][k]
		}
		dxs[t] = dx
	}
	return dxs
}
