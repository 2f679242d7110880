package tsne

import (
	"fmt"
	"math/rand"
	"runtime"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Config controls the Barnes-Hut t-SNE optimization.
// Start with [DefaultConfig] and override the fields you need.
type Config struct {
	// Theta is the Barnes-Hut admissibility threshold: a quadtree node
	// whose width/distance ratio is below Theta stands in for all of its
	// points. 0 disables the approximation (exact pairwise repulsion).
	// Must be >= 0. Default: 0.5.
	Theta float64

	// EpsSq guards the repulsive force against singularities when two
	// points coincide. Must be >= 0. Default: 0.0025.
	EpsSq float64

	// EarlyExaggeration is the factor the affinity values arrive
	// pre-multiplied by; they are divided by it in place when the
	// exaggeration phase ends. Must be > 0. Default: 12.0.
	EarlyExaggeration float64

	// ExaggerationIter is the iteration at which the early-exaggeration
	// phase ends. Must be >= 0. Default: 250.
	ExaggerationIter int

	// MinGain floors the per-dimension adaptive gain. Must be > 0.
	// Default: 0.01.
	MinGain float64

	// PreLearningRate and PostLearningRate are the gradient step sizes
	// during and after the exaggeration phase. Must be > 0.
	// Defaults: 200 and 500.
	PreLearningRate  float64
	PostLearningRate float64

	// MaxIter is the total number of gradient iterations. Must be >= 0.
	// Default: 1000.
	MaxIter int

	// MinGradNorm is accepted for interface compatibility but does not
	// terminate the loop early; the optimizer always runs MaxIter
	// iterations. Default: 1e-7.
	MinGradNorm float64

	// PreMomentum and PostMomentum damp the velocity during and after the
	// exaggeration phase. Must be in [0, 1). Defaults: 0.5 and 0.8.
	PreMomentum  float64
	PostMomentum float64

	// RandomState seeds the random initial embedding draw. Set to -1 for
	// a non-deterministic draw. Ignored when PCAInitialization is true.
	// Default: -1.
	RandomState int64

	// Verbose enables iteration progress output. Advisory only; it never
	// affects results or errors. Default: false.
	Verbose bool

	// PCAInitialization uses the supplied embedding buffer contents as the
	// initial positions instead of drawing small random ones. See PCAInit
	// for producing such a buffer. Default: false.
	PCAInitialization bool

	// Workers controls the number of goroutines for the data-parallel
	// stages and sizes the quadtree node table. 0 means use
	// runtime.NumCPU(). Default: 0 (auto).
	Workers int
}

// DefaultConfig returns a Config with the standard Barnes-Hut t-SNE defaults.
func DefaultConfig() Config {
	return Config{
		Theta:             0.5,
		EpsSq:             0.0025,
		EarlyExaggeration: 12.0,
		ExaggerationIter:  250,
		MinGain:           0.01,
		PreLearningRate:   200,
		PostLearningRate:  500,
		MaxIter:           1000,
		MinGradNorm:       1e-7,
		PreMomentum:       0.5,
		PostMomentum:      0.8,
		RandomState:       -1,
	}
}

// applyDefaults fills in zero-valued config fields with their defaults.
func applyDefaults(cfg *Config) {
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
}

// validateConfig checks that cfg fields are valid and returns a descriptive error if not.
func validateConfig(cfg *Config) error {
	if cfg.Theta < 0 {
		return fmt.Errorf("tsne: Theta must be >= 0, got %f", cfg.Theta)
	}
	if cfg.EpsSq < 0 {
		return fmt.Errorf("tsne: EpsSq must be >= 0, got %f", cfg.EpsSq)
	}
	if cfg.EarlyExaggeration <= 0 {
		return fmt.Errorf("tsne: EarlyExaggeration must be > 0, got %f", cfg.EarlyExaggeration)
	}
	if cfg.ExaggerationIter < 0 {
		return fmt.Errorf("tsne: ExaggerationIter must be >= 0, got %d", cfg.ExaggerationIter)
	}
	if cfg.MinGain <= 0 {
		return fmt.Errorf("tsne: MinGain must be > 0, got %f", cfg.MinGain)
	}
	if cfg.PreLearningRate <= 0 || cfg.PostLearningRate <= 0 {
		return fmt.Errorf("tsne: learning rates must be > 0, got pre=%f post=%f",
			cfg.PreLearningRate, cfg.PostLearningRate)
	}
	if cfg.MaxIter < 0 {
		return fmt.Errorf("tsne: MaxIter must be >= 0, got %d", cfg.MaxIter)
	}
	if cfg.PreMomentum < 0 || cfg.PreMomentum >= 1 || cfg.PostMomentum < 0 || cfg.PostMomentum >= 1 {
		return fmt.Errorf("tsne: momenta must be in [0, 1), got pre=%f post=%f",
			cfg.PreMomentum, cfg.PostMomentum)
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("tsne: Workers must be >= 1 after defaulting, got %d", cfg.Workers)
	}
	return nil
}

// Optimization phases. The transition out of phaseExaggeration happens
// exactly once per run: momentum and learning rate switch to their "post"
// values and the affinity values are divided by EarlyExaggeration in place.
const (
	phaseExaggeration = iota
	phaseNormal
)

// EmbedBarnesHut optimizes a 2D t-SNE embedding of n points from the sparse
// symmetric affinity graph p, overwriting emb with the result.
//
// emb must have length 2n, holding x coordinates in [0, n) and y coordinates
// in [n, 2n). When cfg.PCAInitialization is true its contents seed the
// optimization; otherwise they are ignored and a small random draw (seeded by
// cfg.RandomState) is used. p.Vals is mutated in place at the exaggeration
// transition; see COO.
func EmbedBarnesHut(p *COO, emb []float64, n int, cfg Config) error {
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return err
	}
	if n <= 1 {
		return fmt.Errorf("tsne: need at least 2 points, got %d", n)
	}
	if len(emb) != 2*n {
		return fmt.Errorf("tsne: embedding buffer length %d does not match 2*n = %d", len(emb), 2*n)
	}
	if err := p.validate(n); err != nil {
		return err
	}

	nnodes := treeNodeCount(n, cfg.Workers)
	ws, err := newWorkspace(n, nnodes, cfg.Workers)
	if err != nil {
		return err
	}
	tree := newQuadtree(n, nnodes, cfg.Workers, ws)
	initEmbedding(ws, emb, n, cfg)

	eta := cfg.PreLearningRate
	momentum := cfg.PreMomentum
	maxBound := 100.0
	phase := phaseExaggeration

	var bar *progressbar.ProgressBar
	if cfg.Verbose {
		bar = progressbar.Default(int64(cfg.MaxIter), "t-SNE")
	}

	for iter := 0; iter < cfg.MaxIter; iter++ {
		if phase == phaseExaggeration && iter == cfg.ExaggerationIter {
			phase = phaseNormal
			momentum = cfg.PostMomentum
			eta = cfg.PostLearningRate
			p.scale(1 / cfg.EarlyExaggeration)
		}

		if err := tree.build(); err != nil {
			return err
		}
		z := repulsionPass(tree, cfg.Theta, cfg.EpsSq)
		zNorm := 1 / (z - float64(n))

		normsPass(ws, n, cfg.Workers)
		attractionPass(p, ws, n, cfg.Workers)

		integrationPass(ws, n, zNorm, eta, momentum, cfg.MinGain, maxBound, cfg.Workers)
		maxBound += 0.01

		if bar != nil {
			_ = bar.Add(1)
		}
	}

	copy(emb[:n], ws.posX[:n])
	copy(emb[n:], ws.posY[:n])
	return nil
}

// treeNodeCount returns the highest quadtree node index for n points and the
// given worker count: max(2n, 1024*workers) rounded up to a multiple of 32,
// minus one.
func treeNodeCount(n, workers int) int {
	nn := 2 * n
	if nn < 1024*workers {
		nn = 1024 * workers
	}
	for nn%32 != 0 {
		nn++
	}
	return nn - 1
}

// initEmbedding seeds the working positions either from the caller's buffer
// (PCA initialization) or from a small uniform draw in [-0.001, 0.001].
func initEmbedding(ws *workspace, emb []float64, n int, cfg Config) {
	if cfg.PCAInitialization {
		copy(ws.posX[:n], emb[:n])
		copy(ws.posY[:n], emb[n:2*n])
		return
	}
	seed := cfg.RandomState
	if seed < 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < n; i++ {
		ws.posX[i] = (2*rng.Float64() - 1) * 0.001
		ws.posY[i] = (2*rng.Float64() - 1) * 0.001
	}
}
