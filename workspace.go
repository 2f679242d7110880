package tsne

import (
	"fmt"
	"math"
)

// workspace owns every buffer the engine touches across iterations. All
// regions are carved out of two backing arenas (one float64, one int32) in a
// single allocation each, then reused every iteration: cleared, never
// reallocated.
//
// Regions whose lifetimes never overlap within an iteration share storage
// when their element types match. The per-block scratch is the one such
// alias here: the bounding-box min/max arrays (tree-build stage), the Z
// partial sums (repulsion stage), and the position running sums (integration
// stage) all view the same blockScratch region. Cross-type reuse of the kind
// the GPU original performs (integer tree tables living inside float force
// buffers) has no safe Go equivalent, so those regions get their own arena
// space; behavior is identical either way.
type workspace struct {
	floatArena []float64
	intArena   []int32

	// node-indexed regions, length nnodes+1
	posX, posY []float64 // leaf positions [0,n), cell centers-of-mass above
	mass       []float64 // leaves fixed at 1; cells reset to -1 each iteration
	child      []int32   // 4 quadrant slots per node
	startTbl   []int32   // depth-first start offset per cell
	countTbl   []int32   // bodies under each cell
	state      []uint32  // per-cell summarization state

	sorted []int32 // depth-first body order, length n

	// point-indexed regions
	repX, repY   []float64 // repulsive force accumulators, length n
	attrX, attrY []float64 // attractive force accumulators, length n
	norm         []float64 // |y_i|^2, length n
	normAdd1     []float64 // |y_i|^2 + 1, length n
	gains        []float64 // adaptive gains, x in [0,n), y in [n,2n)
	oldForces    []float64 // previous-iteration velocity, same split

	// per-block scratch, shared across stages (see aliasing note above)
	blockScratch           []float64 // length 4*blocks
	minX, minY, maxX, maxY []float64 // bounding box partials, length blocks
	zScratch               []float64 // Z partial sums, length blocks
	sumScratch             []float64 // position running sums, length 2*blocks

	attrScratch []float64 // per-worker attraction stripes, length blocks*2n
}

// newWorkspace lays out the arenas for n points, node table size nnodes+1 and
// the given number of parallel blocks. It fails rather than attempting an
// allocation whose size arithmetic overflowed.
func newWorkspace(n, nnodes, blocks int) (*workspace, error) {
	nodes := nnodes + 1
	floatLen := 3*nodes + 10*n + 4*blocks + 2*n*blocks
	intLen := 6*nodes + n
	if floatLen <= 0 || intLen <= 0 || nodes <= 0 ||
		float64(floatLen) > float64(math.MaxInt)/16 {
		return nil, fmt.Errorf("tsne: workspace size overflow (n=%d nnodes=%d blocks=%d)",
			n, nnodes, blocks)
	}

	ws := &workspace{
		floatArena: make([]float64, floatLen),
		intArena:   make([]int32, intLen),
		state:      make([]uint32, nodes),
	}

	foff := 0
	takeF := func(size int) []float64 {
		r := ws.floatArena[foff : foff+size : foff+size]
		foff += size
		return r
	}
	ioff := 0
	takeI := func(size int) []int32 {
		r := ws.intArena[ioff : ioff+size : ioff+size]
		ioff += size
		return r
	}

	ws.posX = takeF(nodes)
	ws.posY = takeF(nodes)
	ws.mass = takeF(nodes)
	ws.repX = takeF(n)
	ws.repY = takeF(n)
	ws.attrX = takeF(n)
	ws.attrY = takeF(n)
	ws.norm = takeF(n)
	ws.normAdd1 = takeF(n)
	ws.gains = takeF(2 * n)
	ws.oldForces = takeF(2 * n)
	ws.blockScratch = takeF(4 * blocks)
	ws.attrScratch = takeF(2 * n * blocks)

	// Aliased views of blockScratch: one consumer per stage.
	ws.minX = ws.blockScratch[0*blocks : 1*blocks]
	ws.minY = ws.blockScratch[1*blocks : 2*blocks]
	ws.maxX = ws.blockScratch[2*blocks : 3*blocks]
	ws.maxY = ws.blockScratch[3*blocks : 4*blocks]
	ws.zScratch = ws.blockScratch[0:blocks]
	ws.sumScratch = ws.blockScratch[0 : 2*blocks]

	ws.child = takeI(4 * nodes)
	ws.startTbl = takeI(nodes)
	ws.countTbl = takeI(nodes)
	ws.sorted = takeI(n)

	// Leaf masses are fixed at 1 for the life of the run.
	for i := 0; i < n && i < len(ws.mass); i++ {
		ws.mass[i] = 1
	}
	for i := range ws.gains {
		ws.gains[i] = 1
	}

	return ws, nil
}
