package tsne

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Configuration tests ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 0.5, cfg.Theta)
	assert.Equal(t, 0.0025, cfg.EpsSq)
	assert.Equal(t, 12.0, cfg.EarlyExaggeration)
	assert.Equal(t, 250, cfg.ExaggerationIter)
	assert.Equal(t, 0.01, cfg.MinGain)
	assert.Equal(t, 200.0, cfg.PreLearningRate)
	assert.Equal(t, 500.0, cfg.PostLearningRate)
	assert.Equal(t, 1000, cfg.MaxIter)
	assert.Equal(t, 0.5, cfg.PreMomentum)
	assert.Equal(t, 0.8, cfg.PostMomentum)
	assert.Equal(t, int64(-1), cfg.RandomState)
	assert.Equal(t, 0, cfg.Workers)
}

func TestEmbedBarnesHut_RejectsBadConfig(t *testing.T) {
	n := 4
	p := ringGraph(n, 0.1)
	emb := make([]float64, 2*n)

	bad := []func(*Config){
		func(c *Config) { c.Theta = -0.1 },
		func(c *Config) { c.EpsSq = -1 },
		func(c *Config) { c.EarlyExaggeration = 0 },
		func(c *Config) { c.ExaggerationIter = -1 },
		func(c *Config) { c.MinGain = 0 },
		func(c *Config) { c.PreLearningRate = -5 },
		func(c *Config) { c.PostLearningRate = 0 },
		func(c *Config) { c.MaxIter = -1 },
		func(c *Config) { c.PreMomentum = 1.0 },
		func(c *Config) { c.PostMomentum = -0.2 },
		func(c *Config) { c.Workers = -3 },
	}
	for i, mutate := range bad {
		cfg := DefaultConfig()
		mutate(&cfg)
		err := EmbedBarnesHut(p, emb, n, cfg)
		assert.Error(t, err, "mutation %d should be rejected", i)
	}
}

func TestEmbedBarnesHut_RejectsBadInput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxIter = 1

	// too few points
	p := &COO{Rows: []int{0}, Cols: []int{0}, Vals: []float64{1}}
	require.Error(t, EmbedBarnesHut(p, make([]float64, 2), 1, cfg))

	// nil graph
	require.Error(t, EmbedBarnesHut(nil, make([]float64, 8), 4, cfg))

	// empty graph
	require.Error(t, EmbedBarnesHut(&COO{}, make([]float64, 8), 4, cfg))

	// mismatched triplet arrays
	require.Error(t, EmbedBarnesHut(
		&COO{Rows: []int{0, 1}, Cols: []int{1}, Vals: []float64{1}},
		make([]float64, 8), 4, cfg))

	// out-of-range index
	require.Error(t, EmbedBarnesHut(
		&COO{Rows: []int{0}, Cols: []int{4}, Vals: []float64{1}},
		make([]float64, 8), 4, cfg))

	// wrong embedding buffer length
	require.Error(t, EmbedBarnesHut(ringGraph(4, 0.1), make([]float64, 7), 4, cfg))
}

// --- Optimization behavior tests ---

func TestEmbedBarnesHut_DeterministicWithSeedAndOneWorker(t *testing.T) {
	n := 60
	cfg := DefaultConfig()
	cfg.MaxIter = 40
	cfg.ExaggerationIter = 15
	cfg.RandomState = 42
	cfg.Workers = 1

	run := func() []float64 {
		emb := make([]float64, 2*n)
		if err := EmbedBarnesHut(ringGraph(n, 0.5), emb, n, cfg); err != nil {
			t.Fatalf("EmbedBarnesHut: %v", err)
		}
		return emb
	}
	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("coordinate %d differs across seeded runs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestEmbedBarnesHut_ExaggerationRemovedOnce(t *testing.T) {
	n := 20
	p := ringGraph(n, 0.0)
	for k := range p.Vals {
		p.Vals[k] = 4.0 * (0.01 + 0.001*float64(k)) // pre-multiplied by 4
	}
	orig := append([]float64(nil), p.Vals...)

	cfg := DefaultConfig()
	cfg.MaxIter = 20
	cfg.ExaggerationIter = 5
	cfg.EarlyExaggeration = 4.0
	cfg.RandomState = 7
	cfg.Workers = 1

	emb := make([]float64, 2*n)
	require.NoError(t, EmbedBarnesHut(p, emb, n, cfg))
	for k := range p.Vals {
		assert.Equal(t, orig[k]/4.0, p.Vals[k], "entry %d", k)
	}
}

func TestEmbedBarnesHut_ExaggerationKeptWhenPhaseOutlivesRun(t *testing.T) {
	n := 20
	p := ringGraph(n, 0.3)
	orig := append([]float64(nil), p.Vals...)

	cfg := DefaultConfig()
	cfg.MaxIter = 3
	cfg.ExaggerationIter = 10
	cfg.RandomState = 7
	cfg.Workers = 1

	emb := make([]float64, 2*n)
	require.NoError(t, EmbedBarnesHut(p, emb, n, cfg))
	assert.Equal(t, orig, p.Vals)
}

func TestEmbedBarnesHut_ResultIsCenteredAndBounded(t *testing.T) {
	n := 80
	cfg := DefaultConfig()
	cfg.MaxIter = 100
	cfg.ExaggerationIter = 30
	cfg.RandomState = 3

	emb := make([]float64, 2*n)
	require.NoError(t, EmbedBarnesHut(ringGraph(n, 0.5), emb, n, cfg))

	var mx, my float64
	for i := 0; i < n; i++ {
		mx += emb[i]
		my += emb[n+i]
	}
	mx /= float64(n)
	my /= float64(n)
	if math.Abs(mx) > 1e-8 || math.Abs(my) > 1e-8 {
		t.Errorf("embedding mean = (%v, %v), want (0, 0)", mx, my)
	}

	limit := 100 + 0.01*float64(cfg.MaxIter)
	for i, v := range emb {
		if math.IsNaN(v) || math.Abs(v) > limit {
			t.Fatalf("emb[%d] = %v, want finite within [-%v, %v]", i, v, limit, limit)
		}
	}
}

func TestEmbedBarnesHut_CoincidentStartStaysFinite(t *testing.T) {
	// A zeroed buffer with PCAInitialization puts every point at the
	// origin; the epssq guard and the duplicate handling in the tree must
	// keep the optimization finite.
	n := 16
	cfg := DefaultConfig()
	cfg.MaxIter = 30
	cfg.ExaggerationIter = 10
	cfg.PCAInitialization = true
	cfg.Workers = 2

	emb := make([]float64, 2*n)
	require.NoError(t, EmbedBarnesHut(ringGraph(n, 0.5), emb, n, cfg))
	for i, v := range emb {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("emb[%d] = %v", i, v)
		}
	}
}

func TestEmbedBarnesHut_SeparatesClusters(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end-to-end optimization in short mode")
	}
	n, dims := 120, 10
	X, labels := twoClusterData(n, dims, 90)

	p := gaussianAffinities(X, n, dims, 15)
	cfg := DefaultConfig()
	cfg.MaxIter = 300
	cfg.ExaggerationIter = 100
	cfg.RandomState = 1
	p.scale(cfg.EarlyExaggeration)

	emb := make([]float64, 2*n)
	require.NoError(t, EmbedBarnesHut(p, emb, n, cfg))

	var intra, inter float64
	var nIntra, nInter int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := math.Hypot(emb[i]-emb[j], emb[n+i]-emb[n+j])
			if labels[i] == labels[j] {
				intra += d
				nIntra++
			} else {
				inter += d
				nInter++
			}
		}
	}
	intra /= float64(nIntra)
	inter /= float64(nInter)
	if intra >= 0.5*inter {
		t.Errorf("mean intra-cluster distance %v not well below inter-cluster %v", intra, inter)
	}
}

// --- Synthetic data helpers ---

// twoClusterData draws n points from two well-separated Gaussian blobs in
// dims dimensions and returns the row-major data with cluster labels.
func twoClusterData(n, dims int, seed int64) ([]float64, []int) {
	rng := rand.New(rand.NewSource(seed))
	X := make([]float64, n*dims)
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		center := 0.0
		if i >= n/2 {
			center = 10.0
			labels[i] = 1
		}
		for j := 0; j < dims; j++ {
			X[i*dims+j] = center + rng.NormFloat64()
		}
	}
	return X, labels
}

// gaussianAffinities builds a symmetric k-nearest-neighbor affinity graph
// with Gaussian weights, each undirected pair stored once and the whole graph
// normalized to sum to one.
func gaussianAffinities(X []float64, n, dims, k int) *COO {
	type edge struct{ i, j int }
	weights := make(map[edge]float64)

	dist := make([]float64, n)
	order := make([]int, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var d float64
			for f := 0; f < dims; f++ {
				diff := X[i*dims+f] - X[j*dims+f]
				d += diff * diff
			}
			dist[j] = d
			order[j] = j
		}
		// Selection of the k nearest neighbors, self excluded.
		nn := make([]int, 0, k)
		var sigma2 float64
		for a := 0; a < k; a++ {
			best := -1
			for b := 0; b < n; b++ {
				if order[b] == i || order[b] < 0 {
					continue
				}
				if best == -1 || dist[order[b]] < dist[order[best]] {
					best = b
				}
			}
			nn = append(nn, order[best])
			sigma2 += dist[order[best]]
			order[best] = -1
		}
		sigma2 = sigma2/float64(k) + 1e-9

		for _, j := range nn {
			e := edge{i, j}
			if j < i {
				e = edge{j, i}
			}
			weights[e] += math.Exp(-dist[j] / (2 * sigma2))
		}
	}

	p := &COO{}
	var total float64
	for e, w := range weights {
		p.Rows = append(p.Rows, e.i)
		p.Cols = append(p.Cols, e.j)
		p.Vals = append(p.Vals, w)
		total += w
	}
	p.scale(1 / total)
	return p
}
