package nn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// LSTM is a long short-term memory layer. Gate blocks are laid out
// input, forget, cell, output in the kernel, recurrent kernel and bias.
type LSTM struct {
	input     int
	units     int
	returnSeq bool

	w *Param // 4H x input
	u *Param // 4H x H
	b *Param // 4H x 1

	// forward cache for Backward
	xs    [][]float64
	hs    [][]float64 // hs[0] is the initial state
	cs    [][]float64
	gates [][]float64 // activated i, f, g, o
}

// NewLSTM creates an LSTM layer with Glorot-uniform kernels and a forget
// gate bias of 1.
func NewLSTM(input, units int, returnSequences bool, rng *rand.Rand) *LSTM {
	l := &LSTM{
		input:     input,
		units:     units,
		returnSeq: returnSequences,
		w:         newParam("lstm/kernel", 4*units, input),
		u:         newParam("lstm/recurrent_kernel", 4*units, units),
		b:         newParam("lstm/bias", 4*units, 1),
	}
	glorotUniform(l.w, input, 4*units, rng)
	glorotUniform(l.u, units, 4*units, rng)
	for k := units; k < 2*units; k++ {
		l.b.Value[k] = 1
	}
	return l
}

func (l *LSTM) Params() []*Param {
	return []*Param{l.w, l.u, l.b}
}

func (l *LSTM) Spec() LayerSpec {
	return LayerSpec{Kind: KindLSTM, Units: l.units, ReturnSequences: l.returnSeq}
}

func (l *LSTM) OutputWidth() int {
	return l.units
}

func (l *LSTM) Forward(xs [][]float64, _ bool) [][]float64 {
	H := l.units
	T := len(xs)
	W := l.w.Matrix()
	U := l.u.Matrix()
	bias := mat.NewVecDense(4*H, l.b.Value)

	l.xs = xs
	l.hs = make([][]float64, T+1)
	l.cs = make([][]float64, T+1)
	l.gates = make([][]float64, T)
	l.hs[0] = make([]float64, H)
	l.cs[0] = make([]float64, H)

	for t := 0; t < T; t++ {
		z := mat.NewVecDense(4*H, nil)
		z.MulVec(W, mat.NewVecDense(l.input, xs[t]))
		var uh mat.VecDense
		uh.MulVec(U, mat.NewVecDense(H, l.hs[t]))
		z.AddVec(z, &uh)
		z.AddVec(z, bias)
		zd := z.RawVector().Data

		gate := make([]float64, 4*H)
		h := make([]float64, H)
		c := make([]float64, H)
		cprev := l.cs[t]
		for k := 0; k < H; k++ {
			i := sigmoid(zd[k])
			f := sigmoid(zd[H+k])
			g := math.Tanh(zd[2*H+k])
			o := sigmoid(zd[3*H+k])
			gate[k], gate[H+k], gate[2*H+k], gate[3*H+k] = i, f, g, o

			c[k] = f*cprev[k] + i*g
			h[k] = o * math.Tanh(c[k])
		}
		l.gates[t] = gate
		l.hs[t+1] = h
		l.cs[t+1] = c
	}

	if l.returnSeq {
		return l.hs[1:]
	}
	return [][]float64{l.hs[T]}
}

func (l *LSTM) Backward(dys [][]float64) [][]float64 {
	H := l.units
	T := len(l.xs)
	W := l.w.Matrix()
	U := l.u.Matrix()
	dW := l.w.GradMatrix()
	dU := l.u.GradMatrix()

	dxs := make([][]float64, T)
	dhNext := make([]float64, H)
	dcNext := make([]float64, H)
	dz := make([]float64, 4*H)
	dzv := mat.NewVecDense(4*H, dz)

	for t := T - 1; t >= 0; t-- {
		dh := make([]float64, H)
		copy(dh, dhNext)
		if l.returnSeq {
			floats.Add(dh, dys[t])
		} else if t == T-1 {
			floats.Add(dh, dys[0])
		}

		gate := l.gates[t]
		c := l.cs[t+1]
		cprev := l.cs[t]
		for k := 0; k < H; k++ {
			i, f, g, o := gate[k], gate[H+k], gate[2*H+k], gate[3*H+k]
			tc := math.Tanh(c[k])

			do := dh[k] * tc
			dc := dcNext[k] + dh[k]*o*(1-tc*tc)
			dcNext[k] = dc * f

			dz[k] = dc * g * i * (1 - i)
			dz[H+k] = dc * cprev[k] * f * (1 - f)
			dz[2*H+k] = dc * i * (1 - g*g)
			dz[3*H+k] = do * o * (1 - o)
		}

		dW.RankOne(dW, 1, dzv, mat.NewVecDense(l.input, l.xs[t]))
		dU.RankOne(dU, 1, dzv, mat.NewVecDense(H, l.hs[t]))
		floats.Add(l.b.Grad, dz)

		var dx mat.VecDense
		dx.MulVec(W.T(), dzv)
		dxs[t] = append([]float64(nil), dx.RawVector().Data...)

		var dhp mat.VecDense
		dhp.MulVec(U.T(), dzv)
		dhNext = append(dhNext[:0], dhp.RawVector().Data...)
	}

	return dxs
}
