package tsne

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// pcaInitScale is the standard deviation of the first principal component
// after projection. Starting small lets the early-exaggeration phase arrange
// clusters before points travel far.
const pcaInitScale = 1e-4

// PCAInit projects the n x dims row-major data set X onto its top two
// principal components and returns an embedding buffer laid out for
// EmbedBarnesHut, x coordinates in [0, n) and y coordinates in [n, 2n). The
// projection is rescaled so the first component has standard deviation 1e-4.
//
// Use the result as the emb argument of EmbedBarnesHut together with
// Config.PCAInitialization = true.
func PCAInit(X []float64, n, dims int) ([]float64, error) {
	if n < 2 {
		return nil, fmt.Errorf("tsne: PCA initialization needs at least 2 points, got %d", n)
	}
	if dims < 2 {
		return nil, fmt.Errorf("tsne: PCA initialization needs at least 2 feature dimensions, got %d", dims)
	}
	if len(X) != n*dims {
		return nil, fmt.Errorf("tsne: data length %d does not match %d points x %d dimensions", len(X), n, dims)
	}

	means := make([]float64, dims)
	for i := 0; i < n; i++ {
		row := X[i*dims : (i+1)*dims]
		floats.Add(means, row)
	}
	floats.Scale(1/float64(n), means)

	centered := mat.NewDense(n, dims, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < dims; j++ {
			centered.Set(i, j, X[i*dims+j]-means[j])
		}
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, centered, nil)

	vals, vecs, err := symEig(&cov)
	if err != nil {
		return nil, err
	}

	emb := make([]float64, 2*n)
	if vals[dims-1] <= 0 {
		// No variance anywhere. All projections are zero and the caller
		// gets a degenerate but valid starting layout.
		return emb, nil
	}

	// Eigenvalues come back ascending, so the leading components are the
	// last two columns.
	for i := 0; i < n; i++ {
		var px, py float64
		for j := 0; j < dims; j++ {
			c := centered.At(i, j)
			px += c * vecs.At(j, dims-1)
			py += c * vecs.At(j, dims-2)
		}
		emb[i] = px
		emb[n+i] = py
	}

	if std := stat.StdDev(emb[:n], nil); std > 0 {
		floats.Scale(pcaInitScale/std, emb)
	}
	return emb, nil
}
