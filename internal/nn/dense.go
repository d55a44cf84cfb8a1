package nn

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	ActivationLinear  = "linear"
	ActivationReLU    = "relu"
	ActivationSigmoid = "sigmoid"
)

// Dense is a fully connected layer applied independently at every step
type Dense struct {
	input      int
	units      int
	activation string

	w *Param // units x input
	b *Param // units x 1

	xs   [][]float64
	outs [][]float64
}

// NewDense creates a dense layer with a Glorot-uniform kernel and zero bias
func NewDense(input, units int, activation string, rng *rand.Rand) (*Dense, error) {
	switch activation {
	case "":
		activation = ActivationLinear
	case ActivationLinear, ActivationReLU, ActivationSigmoid:
	default:
		return nil, fmt.Errorf("unknown activation %q", activation)
	}

	d := &Dense{
		input:      input,
		units:      units,
		activation: activation,
		w:          newParam("dense/kernel", units, input),
		b:          newParam("dense/bias", units, 1),
	}
	glorotUniform(d.w, input, units, rng)
	return d, nil
}

func (d *Dense) Params() []*Param {
	return []*Param{d.w, d.b}
}

func (d *Dense) Spec() LayerSpec {
	return LayerSpec{Kind: KindDense, Units: d.units, Activation: d.activation}
}

func (d *Dense) OutputWidth() int {
	return d.units
}

func (d *Dense) Forward(xs [][]float64, _ bool) [][]float64 {
	W := d.w.Matrix()
	bias := mat.NewVecDense(d.units, d.b.Value)

	d.xs = xs
	d.outs = make([][]float64, len(xs))
	for t, x := range xs {
		z := mat.NewVecDense(d.units, nil)
		z.MulVec(W, mat.NewVecDense(d.input, x))
		z.AddVec(z, bias)

		out := append([]float64(nil), z.RawVector().Data...)
		for k, v := range out {
			out[k] = d.activate(v)
		}
		d.outs[t] = out
	}
	return d.outs
}

func (d *Dense) Backward(dys [][]float64) [][]float64 {
	W := d.w.Matrix()
	dW := d.w.GradMatrix()

	dxs := make([][]float64, len(dys))
	for t, dy := range dys {
		dz := make([]float64, d.units)
		for k := range dz {
			dz[k] = dy[k] * d.derivative(d.outs[t][k])
		}
		dzv := mat.NewVecDense(d.units, dz)

		dW.RankOne(dW, 1, dzv, mat.NewVecDense(d.input, d.xs[t]))
		floats.Add(d.b.Grad, dz)

		var dx mat.VecDense
		dx.MulVec(W.T(), dzv)
		dxs[t] = append([]float64(nil), dx.RawVector().Data...)
	}
	return dxs
}

func (d *Dense) activate(v float64) float64 {
	switch d.activation {
	case ActivationReLU:
		if v > 0 {
			return v
		}
		return 0
	case ActivationSigmoid:
		return sigmoid(v)
	default:
		return v
	}
}

// derivative is expressed in terms of the activation output
func (d *Dense) derivative(out float64) float64 {
	switch d.activation {
	case ActivationReLU:
		if out > 0 {
			return 1
		}
		return 0
	case ActivationSigmoid:
		return out * (1 - out)
	default:
		return 1
	}
}
