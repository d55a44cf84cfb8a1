package nn

import "math"

const probEpsilon = 1e-7

func clampProb(p float64) float64 {
	return math.Min(math.Max(p, probEpsilon), 1-probEpsilon)
}

// BinaryCrossEntropy is -(y log p + (1-y) log(1-p)) with p clamped away from 0 and 1
func BinaryCrossEntropy(p, y float64) float64 {
	p = clampProb(p)
	return -(y*math.Log(p) + (1-y)*math.Log(1-p))
}

// binaryCrossEntropyGrad is dLoss/dp
func binaryCrossEntropyGrad(p, y float64) float64 {
	p = clampProb(p)
	return (p - y) / (p * (1 - p))
}

// predictedClass thresholds a probability at 0.5
func predictedClass(p float64) float64 {
	if p > 0.5 {
		return 1
	}
	return 0
}
