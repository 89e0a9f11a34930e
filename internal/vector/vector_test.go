package vector

import (
	"math"
	"math/rand"
	"testing"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  Vector
		expect Vector
	}{
		{name: "scales to unit", input: Vector{3, 4}, expect: Vector{0.6, 0.8}},
		{name: "keeps zero vector", input: Vector{0, 0}, expect: Vector{0, 0}},
		{name: "keeps near zero vector", input: Vector{1e-14, 0}, expect: Vector{1e-14, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Normalize(tt.input)
			if !Equal(got, tt.expect, 1e-12) {
				t.Fatalf("expected %v, got %v", tt.expect, got)
			}
		})
	}
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	in := Vector{3, 4}
	_ = Normalize(in)
	if in[0] != 3 || in[1] != 4 {
		t.Fatalf("input mutated: %v", in)
	}
}

func TestCosineAndUnitInterval(t *testing.T) {
	a := Vector{1, 0}
	b := Vector{-1, 0}
	if got := Cosine(a, b); math.Abs(got+1) > 1e-12 {
		t.Fatalf("expected -1, got %v", got)
	}
	if got := ToUnitInterval(Cosine(a, b)); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
	if got := ToUnitInterval(Cosine(a, a)); got != 1 {
		t.Fatalf("expected 1, got %v", got)
	}
	if got := Cosine(a, Vector{0, 0}); got != 0 {
		t.Fatalf("expected 0 for zero vector, got %v", got)
	}
}

func TestMeanAndCombine(t *testing.T) {
	m := Mean([]Vector{{1, 0}, {0, 1}})
	if !Equal(m, Vector{0.5, 0.5}, 1e-12) {
		t.Fatalf("unexpected mean %v", m)
	}

	c := Combine(1.0, Vector{1, 1}, -0.5, Vector{2, 0})
	if !Equal(c, Vector{0, 1}, 1e-12) {
		t.Fatalf("unexpected combination %v", c)
	}
}

func TestRandomUnit(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		v := RandomUnit(rng, 16)
		if len(v) != 16 {
			t.Fatalf("unexpected dimension %d", len(v))
		}
		if math.Abs(Norm(v)-1) > 1e-9 {
			t.Fatalf("expected unit norm, got %v", Norm(v))
		}
	}
}

func TestFloat32RoundTripKeepsDirection(t *testing.T) {
	v := Normalize(Vector{1, 2, 3})
	back := FromFloat32(ToFloat32(v))
	if math.Abs(Cosine(v, back)-1) > 1e-6 {
		t.Fatalf("direction changed: %v vs %v", v, back)
	}
}
