// Package tsne implements Barnes-Hut t-distributed Stochastic Neighbor
// Embedding (t-SNE) for 2D dimensionality reduction.
//
// The engine consumes a precomputed sparse symmetric affinity graph (COO
// format) describing input-space similarity and iteratively optimizes a 2D
// embedding by gradient descent. Repulsive forces are approximated in
// O(N log N) per iteration with a quadtree and the Barnes-Hut admissibility
// criterion; attractive forces are computed exactly in O(NNZ) from the
// affinity graph.
//
// Basic usage:
//
//	cfg := tsne.DefaultConfig()
//	emb := make([]float64, 2*n) // x coordinates in [0,n), y in [n,2n)
//	err := tsne.EmbedBarnesHut(affinities, emb, n, cfg)
//
// To initialize from a PCA projection instead of a random draw:
//
//	emb, err := tsne.PCAInit(data, n, dims)
//	cfg.PCAInitialization = true
//	err = tsne.EmbedBarnesHut(affinities, emb, n, cfg)
//
// # Optimization schedule
//
// The first Config.ExaggerationIter iterations run in an early-exaggeration
// phase: the affinity values are expected to arrive pre-multiplied by
// Config.EarlyExaggeration, and momentum and learning rate use their "pre"
// values. At the phase transition the affinity values are divided back down
// in place (exactly once per run) and the "post" momentum and learning rate
// take over until Config.MaxIter.
//
// All per-iteration stages run as data-parallel passes over goroutine worker
// pools; Config.Workers controls the degree of parallelism. For a fixed
// Config.RandomState the optimization is reproducible: workers accumulate
// into private stripes merged in a fixed order rather than racing on shared
// accumulators. The one exception is input containing exactly coincident
// points, whose quadtree ties resolve in arrival order when Workers > 1.
package tsne
