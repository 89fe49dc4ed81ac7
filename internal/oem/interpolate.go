package oem

import (
	"gonum.org/v1/gonum/interp"

	"github.com/litescript/ls-ephem/internal/epoch"
)

// lagrange evaluates, per state component, the Lagrange polynomial through
// the window samples at e. Abscissae are offsets from the first window
// epoch to keep the products well scaled.
func lagrange(window []Sample, e epoch.Epoch) Vector6 {
	if len(window) == 1 {
		return window[0].State
	}

	t0 := window[0].Epoch
	x := e.Sub(t0)
	xs := make([]float64, len(window))
	for k := range window {
		xs[k] = window[k].Epoch.Sub(t0)
	}

	var out Vector6
	for k := range window {
		w := 1.0
		for j := range window {
			if j == k {
				continue
			}
			w *= (x - xs[j]) / (xs[k] - xs[j])
		}
		for c := 0; c < 6; c++ {
			out[c] += w * window[k].State[c]
		}
	}
	return out
}

// hermite fits a piecewise cubic Hermite curve to each position component,
// using the sample velocities as derivatives. Velocity is the derivative of
// the fitted position curve. Outside the sampled span the state is carried
// linearly from the nearest sample.
func hermite(window []Sample, e epoch.Epoch) Vector6 {
	first, last := window[0], window[len(window)-1]
	switch {
	case len(window) == 1:
		return extrapolate(first, e)
	case e.Before(first.Epoch):
		return extrapolate(first, e)
	case e.After(last.Epoch):
		return extrapolate(last, e)
	}

	t0 := first.Epoch
	x := e.Sub(t0)
	xs := make([]float64, len(window))
	ys := make([]float64, len(window))
	dys := make([]float64, len(window))
	for k := range window {
		xs[k] = window[k].Epoch.Sub(t0)
	}

	var out Vector6
	var pc interp.PiecewiseCubic
	for c := 0; c < 3; c++ {
		for k := range window {
			ys[k] = window[k].State[c]
			dys[k] = window[k].State[c+3]
		}
		pc.FitWithDerivatives(xs, ys, dys)
		out[c] = pc.Predict(x)
		out[c+3] = pc.PredictDerivative(x)
	}
	return out
}

// extrapolate propagates a sample in a straight line to e.
func extrapolate(s Sample, e epoch.Epoch) Vector6 {
	dt := e.Sub(s.Epoch)
	out := s.State
	for c := 0; c < 3; c++ {
		out[c] += s.State[c+3] * dt
	}
	return out
}
