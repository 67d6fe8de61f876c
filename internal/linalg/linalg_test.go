package linalg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func testWeights() *mat.SymDense {
	return mat.NewSymDense(4, []float64{
		0, 1, 0.5, 2,
		1, 0, 3, 0.25,
		0.5, 3, 0, 1,
		2, 0.25, 1, 0,
	})
}

func TestLaplacianRowsSumToZero(t *testing.T) {
	l := Laplacian(testWeights())
	n := l.SymmetricDim()
	for i := 0; i < n; i++ {
		var sum float64
		for j := 0; j < n; j++ {
			sum += l.At(i, j)
		}
		assert.InDelta(t, 0, sum, 1e-12, "row %d", i)
	}
	assert.Equal(t, 3.5, l.At(0, 0))
	assert.Equal(t, -3.0, l.At(1, 2))
}

func TestLaplacianIgnoresDiagonal(t *testing.T) {
	w := testWeights()
	w.SetSym(2, 2, 100)
	assert.True(t, mat.Equal(Laplacian(testWeights()), Laplacian(w)))
}

func TestPseudoInversePenroseConditions(t *testing.T) {
	a := Laplacian(testWeights())
	p, err := PseudoInverse(a)
	require.NoError(t, err)

	var apa, pap, ap, pa mat.Dense
	ap.Mul(a, p)
	pa.Mul(p, a)
	apa.Mul(&ap, a)
	pap.Mul(&pa, p)

	assert.True(t, mat.EqualApprox(&apa, a, 1e-10), "A A+ A != A")
	assert.True(t, mat.EqualApprox(&pap, p, 1e-10), "A+ A A+ != A+")
	assert.True(t, mat.EqualApprox(&ap, ap.T(), 1e-10), "A A+ not symmetric")
	assert.True(t, mat.EqualApprox(&pa, pa.T(), 1e-10), "A+ A not symmetric")

	// The constant vector spans the null space of a connected Laplacian.
	ones := mat.NewVecDense(4, []float64{1, 1, 1, 1})
	var pv mat.VecDense
	pv.MulVec(p, ones)
	assert.InDelta(t, 0, mat.Norm(&pv, 2), 1e-10)
}

func TestPseudoInverseOfInvertible(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{4, 7, 2, 6})
	p, err := PseudoInverse(a)
	require.NoError(t, err)

	var inv mat.Dense
	require.NoError(t, inv.Inverse(a))
	assert.True(t, mat.EqualApprox(p, &inv, 1e-12))
}

func TestPseudoInverseRectangular(t *testing.T) {
	a := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})
	p, err := PseudoInverse(a)
	require.NoError(t, err)

	r, c := p.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 3, c)

	var pa mat.Dense
	pa.Mul(p, a)
	assert.True(t, mat.EqualApprox(&pa, mat.NewDiagDense(2, []float64{1, 1}), 1e-10))
}
