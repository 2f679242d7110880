package tsne

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// symEig computes the eigendecomposition of the symmetric matrix a,
// returning eigenvalues in ascending order with the matching eigenvector
// columns. This is the dense symmetric solver contract the PCA
// initialization builds on; callers wanting principal components read the
// columns back to front.
func symEig(a *mat.SymDense) ([]float64, *mat.Dense, error) {
	var eig mat.EigenSym
	if !eig.Factorize(a, true) {
		return nil, nil, fmt.Errorf("tsne: symmetric eigendecomposition did not converge")
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	return vals, &vecs, nil
}
