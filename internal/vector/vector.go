// Package vector holds the unit-sphere arithmetic shared by both towers.
package vector

import (
	"math"
	"math/rand"
)

// ZeroNormEpsilon is the norm below which a vector is left as is instead of being scaled.
const ZeroNormEpsilon = 1e-12

// Vector is a dense embedding.
type Vector []float64

func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

func Norm(v Vector) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Normalize returns v scaled to unit length. Near-zero input is returned unchanged.
func Normalize(v Vector) Vector {
	n := Norm(v)
	out := v.Clone()
	if n <= ZeroNormEpsilon {
		return out
	}
	for i := range out {
		out[i] /= n
	}
	return out
}

// IsZero reports whether v has no direction.
func IsZero(v Vector) bool {
	return Norm(v) <= ZeroNormEpsilon
}

// Dot returns the inner product over the shared prefix of a and b.
func Dot(a, b Vector) float64 {
	n := min(len(a), len(b))
	var sum float64
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// Cosine returns the cosine similarity in [-1, 1]; zero vectors give 0.
func Cosine(a, b Vector) float64 {
	na, nb := Norm(a), Norm(b)
	if na <= ZeroNormEpsilon || nb <= ZeroNormEpsilon {
		return 0
	}
	return clamp(Dot(a, b)/(na*nb), -1, 1)
}

// ToUnitInterval maps a cosine in [-1, 1] to [0, 1].
func ToUnitInterval(cos float64) float64 {
	return (clamp(cos, -1, 1) + 1) / 2
}

// Mean averages vectors of equal length.
func Mean(vs []Vector) Vector {
	if len(vs) == 0 {
		return nil
	}
	out := make(Vector, len(vs[0]))
	for _, v := range vs {
		for i := range out {
			if i < len(v) {
				out[i] += v[i]
			}
		}
	}
	for i := range out {
		out[i] /= float64(len(vs))
	}
	return out
}

// Combine returns wa*a + wb*b.
func Combine(wa float64, a Vector, wb float64, b Vector) Vector {
	n := max(len(a), len(b))
	out := make(Vector, n)
	for i := 0; i < n; i++ {
		if i < len(a) {
			out[i] += wa * a[i]
		}
		if i < len(b) {
			out[i] += wb * b[i]
		}
	}
	return out
}

// RandomUnit draws a direction uniformly on the unit sphere.
func RandomUnit(rng *rand.Rand, dim int) Vector {
	if dim <= 0 {
		return nil
	}
	for {
		v := make(Vector, dim)
		for i := range v {
			v[i] = rng.NormFloat64()
		}
		if !IsZero(v) {
			return Normalize(v)
		}
	}
}

// Equal compares element-wise with the given tolerance.
func Equal(a, b Vector, tol float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}

// ToFloat32 converts at storage boundaries that keep single precision.
func ToFloat32(v Vector) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func FromFloat32(v []float32) Vector {
	out := make(Vector, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
