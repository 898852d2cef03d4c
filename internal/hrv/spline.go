package hrv

import (
	"math"

	"github.com/danielpatrickdp/hrv-parity/internal/hrverr"
)

// #region spline
// Spline is a natural cubic spline through (X[i], G[i]) with second
// derivatives M[i]; M is zero at both ends.
type Spline struct {
	X, G, M []float64
}

// SmoothingSpline fits a cubic smoothing spline to (x, y) whose sum of
// squared residuals is approximately s. s <= 0 gives the natural
// interpolating spline. x must be strictly increasing with at least 3 points.
func SmoothingSpline(x, y []float64, s float64) (Spline, error) {
	n := len(x)
	if n < 3 || len(y) != n {
		return Spline{}, hrverr.InsufficientData("hrv.SmoothingSpline", "%d knots, need at least 3", n)
	}
	h := make([]float64, n-1)
	for i := range h {
		h[i] = x[i+1] - x[i]
		if !(h[i] > 0) {
			return Spline{}, hrverr.InvalidParameter("hrv.SmoothingSpline", "knots not strictly increasing at %d", i+1)
		}
	}

	sys := newReinsch(h, y)
	if s <= 0 {
		return sys.spline(x, 0), nil
	}

	// SSE grows monotonically with lambda. Find an upper bracket, then
	// bisect in log space.
	lo, hi := 1e-12, 1.0
	for sys.sse(hi) < s && hi < 1e12 {
		hi *= 10
	}
	if sys.sse(hi) <= s {
		return sys.spline(x, hi), nil
	}
	for i := 0; i < 60; i++ {
		mid := math.Sqrt(lo * hi)
		if sys.sse(mid) < s {
			lo = mid
		} else {
			hi = mid
		}
	}
	return sys.spline(x, math.Sqrt(lo*hi)), nil
}

// Eval returns the spline value at t, extrapolating linearly beyond the ends.
func (sp Spline) Eval(t float64) float64 {
	n := len(sp.X)
	i := searchInterval(sp.X, t)
	h := sp.X[i+1] - sp.X[i]
	if t < sp.X[0] || t > sp.X[n-1] {
		// Natural ends have zero curvature; continue along the end slope.
		if t < sp.X[0] {
			slope := (sp.G[1]-sp.G[0])/h - h*sp.M[1]/6
			return sp.G[0] + slope*(t-sp.X[0])
		}
		slope := (sp.G[n-1]-sp.G[n-2])/h + h*sp.M[n-2]/6
		return sp.G[n-1] + slope*(t-sp.X[n-1])
	}
	a := (sp.X[i+1] - t) / h
	b := (t - sp.X[i]) / h
	return a*sp.G[i] + b*sp.G[i+1] + ((a*a*a-a)*sp.M[i]+(b*b*b-b)*sp.M[i+1])*h*h/6
}

// searchInterval returns i such that x[i] <= t < x[i+1], clamped to the ends.
func searchInterval(x []float64, t float64) int {
	lo, hi := 0, len(x)-2
	if t <= x[0] {
		return 0
	}
	if t >= x[len(x)-1] {
		return hi
	}
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if x[mid] <= t {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// Resample evaluates sp on a uniform grid at fs Hz from X[0] to X[n-1].
func (sp Spline) Resample(fs float64) []float64 {
	start, end := sp.X[0], sp.X[len(sp.X)-1]
	n := int(math.Floor((end-start)*fs)) + 1
	out := make([]float64, n)
	for i := range out {
		out[i] = sp.Eval(start + float64(i)/fs)
	}
	return out
}
// #endregion spline

// #region reinsch
// reinsch holds the banded matrices of the penalised least squares problem
// (R + lambda*QᵀQ) gamma = Qᵀy, with g = y - lambda*Q*gamma.
type reinsch struct {
	h, y []float64
	// R: tridiagonal
	rd, r1 []float64
	// QᵀQ: pentadiagonal
	qd, q1, q2 []float64
	qty        []float64
}

func newReinsch(h, y []float64) *reinsch {
	n := len(y)
	m := n - 2
	r := &reinsch{
		h: h, y: y,
		rd: make([]float64, m), r1: make([]float64, m),
		qd: make([]float64, m), q1: make([]float64, m), q2: make([]float64, m),
		qty: make([]float64, m),
	}
	inv := func(i int) float64 {
		if i < 0 || i >= len(h) {
			return 0
		}
		return 1 / h[i]
	}
	for j := 0; j < m; j++ {
		r.rd[j] = (h[j] + h[j+1]) / 3
		if j+1 < m {
			r.r1[j] = h[j+1] / 6
		}
		a, b, c := inv(j), -inv(j)-inv(j+1), inv(j+1)
		r.qd[j] = a*a + b*b + c*c
		if j+1 < m {
			r.q1[j] = b*inv(j+1) + c*(-inv(j+1)-inv(j+2))
		}
		if j+2 < m {
			r.q2[j] = c * inv(j+2)
		}
		r.qty[j] = (y[j+2]-y[j+1])/h[j+1] - (y[j+1]-y[j])/h[j]
	}
	return r
}

// solve returns gamma for the given lambda.
func (r *reinsch) solve(lambda float64) []float64 {
	m := len(r.rd)
	d := make([]float64, m)
	e := make([]float64, m)
	f := make([]float64, m)
	for j := 0; j < m; j++ {
		d[j] = r.rd[j] + lambda*r.qd[j]
		e[j] = r.r1[j] + lambda*r.q1[j]
		f[j] = lambda * r.q2[j]
	}
	return solvePenta(d, e, f, r.qty)
}

// fitted returns g = y - lambda*Q*gamma.
func (r *reinsch) fitted(lambda float64, gamma []float64) []float64 {
	g := append([]float64(nil), r.y...)
	if lambda == 0 {
		return g
	}
	for j, gm := range gamma {
		g[j] -= lambda * gm / r.h[j]
		g[j+1] -= lambda * gm * (-1/r.h[j] - 1/r.h[j+1])
		g[j+2] -= lambda * gm / r.h[j+1]
	}
	return g
}

func (r *reinsch) sse(lambda float64) float64 {
	g := r.fitted(lambda, r.solve(lambda))
	var sum float64
	for i, v := range r.y {
		d := v - g[i]
		sum += d * d
	}
	return sum
}

func (r *reinsch) spline(x []float64, lambda float64) Spline {
	gamma := r.solve(lambda)
	m := make([]float64, len(x))
	copy(m[1:len(x)-1], gamma)
	return Spline{X: append([]float64(nil), x...), G: r.fitted(lambda, gamma), M: m}
}

// solvePenta solves a symmetric pentadiagonal system by LDLᵀ factorisation.
// d is the diagonal, e the first and f the second super-diagonal.
func solvePenta(d, e, f, rhs []float64) []float64 {
	m := len(d)
	D := make([]float64, m)
	a := make([]float64, m) // L[i+1][i]
	b := make([]float64, m) // L[i+2][i]
	for i := 0; i < m; i++ {
		D[i] = d[i]
		if i >= 1 {
			D[i] -= a[i-1] * a[i-1] * D[i-1]
		}
		if i >= 2 {
			D[i] -= b[i-2] * b[i-2] * D[i-2]
		}
		if i+1 < m {
			a[i] = e[i]
			if i >= 1 {
				a[i] -= b[i-1] * D[i-1] * a[i-1]
			}
			a[i] /= D[i]
		}
		if i+2 < m {
			b[i] = f[i] / D[i]
		}
	}

	z := make([]float64, m)
	for i := 0; i < m; i++ {
		z[i] = rhs[i]
		if i >= 1 {
			z[i] -= a[i-1] * z[i-1]
		}
		if i >= 2 {
			z[i] -= b[i-2] * z[i-2]
		}
	}
	x := make([]float64, m)
	for i := m - 1; i >= 0; i-- {
		x[i] = z[i] / D[i]
		if i+1 < m {
			x[i] -= a[i] * x[i+1]
		}
		if i+2 < m {
			x[i] -= b[i] * x[i+2]
		}
	}
	return x
}
// #endregion reinsch
