package entropy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeededReplays(t *testing.T) {
	a, b := NewSeeded(7), NewSeeded(7)
	for range 100 {
		assert.Equal(t, a.Float64(), b.Float64())
		assert.Equal(t, a.NormFloat64(), b.NormFloat64())
	}
	assert.Equal(t, int64(7), a.Seed())
}

func TestDeriveIsStableAndDistinct(t *testing.T) {
	root := NewSeeded(42)
	x, y := root.Derive(1), NewSeeded(42).Derive(1)
	assert.Equal(t, x.Float64(), y.Float64())

	z := root.Derive(2)
	assert.NotEqual(t, root.Derive(1).Float64(), z.Float64())
}

func TestHelpers(t *testing.T) {
	src := NewSeeded(1)
	assert.False(t, Bernoulli(src, 0))
	assert.False(t, Bernoulli(src, -1))
	assert.True(t, Bernoulli(src, 1))

	for range 1000 {
		u := Uniform(src, 2, 3)
		assert.GreaterOrEqual(t, u, 2.0)
		assert.Less(t, u, 3.0)
	}
	assert.Equal(t, 5.0, Normal(src, 5, 0))
}

func TestCrypto(t *testing.T) {
	var c Crypto
	for range 100 {
		f := c.Float64()
		assert.GreaterOrEqual(t, f, 0.0)
		assert.Less(t, f, 1.0)
	}
	assert.IsType(t, Crypto{}, OrCrypto(nil))
	src := NewSeeded(3)
	assert.Same(t, src, OrCrypto(src))
}
