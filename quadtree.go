package tsne

import (
	"fmt"
	"sync/atomic"
)

const (
	emptyslot  int32 = -1 // quadrant slot holds nothing
	lockedSlot int32 = -2 // quadrant slot claimed while a subtree is spliced in

	// Past this depth, points too close to separate stop subdividing and
	// share a cell. Keeps exact duplicates from exhausting the cell arena.
	maxSplitDepth = 128
)

// quadtree is an implicit array quadtree over node indices [0, nnodes].
// Indices [0, n) are leaves, one per point; the root lives at nnodes and
// internal cells are allocated downward from it by an atomic bottom counter.
// All node storage lives in the shared workspace so the tree can be rebuilt
// every iteration without allocating.
type quadtree struct {
	n       int
	nnodes  int
	workers int
	ws      *workspace

	bottom   int32 // atomic; lowest allocated cell index
	maxDepth int32 // atomic; deepest level reached during insertion
	overflow int32 // atomic; set when the cell arena is exhausted
	arrived  int32 // atomic arrival counter for the bounding-box merge

	radius float64 // half-width of the square root cell
}

func newQuadtree(n, nnodes, workers int, ws *workspace) *quadtree {
	return &quadtree{n: n, nnodes: nnodes, workers: workers, ws: ws}
}

// childQuadrant returns the quadrant index of (px, py) relative to the cell
// center (cx, cy): bit 0 set for the high-x half, bit 1 for the high-y half.
func childQuadrant(px, py, cx, cy float64) int {
	j := 0
	if cx < px {
		j = 1
	}
	if cy < py {
		j |= 2
	}
	return j
}

// build runs the per-iteration tree construction stages in order: bounding
// box, slot clearing, concurrent insertion, aggregate clearing, bottom-up
// summarization and the depth-first sort pass.
func (t *quadtree) build() error {
	t.computeBounds()
	t.clearChildren()
	if err := t.insertAll(); err != nil {
		return err
	}
	t.clearAggregates()
	t.summarize()
	t.sortBodies()
	return nil
}

// computeBounds finds the square bounding box of all points with a parallel
// min/max reduction: each block reduces its range into per-block scratch,
// and the last block to arrive merges across blocks and initializes the root.
func (t *quadtree) computeBounds() {
	ws := t.ws
	blocks := rangeCount(t.n, t.workers)
	atomic.StoreInt32(&t.arrived, 0)
	atomic.StoreInt32(&t.overflow, 0)

	launchRanges(t.n, t.workers, func(w, start, end int) {
		minx, maxx := ws.posX[start], ws.posX[start]
		miny, maxy := ws.posY[start], ws.posY[start]
		for i := start + 1; i < end; i++ {
			x, y := ws.posX[i], ws.posY[i]
			if x < minx {
				minx = x
			}
			if x > maxx {
				maxx = x
			}
			if y < miny {
				miny = y
			}
			if y > maxy {
				maxy = y
			}
		}
		ws.minX[w], ws.maxX[w] = minx, maxx
		ws.minY[w], ws.maxY[w] = miny, maxy

		if int(atomic.AddInt32(&t.arrived, 1)) != blocks {
			return
		}
		// Last block to arrive merges the per-block results.
		for b := 1; b < blocks; b++ {
			if ws.minX[b] < minx {
				minx = ws.minX[b]
			}
			if ws.maxX[b] > maxx {
				maxx = ws.maxX[b]
			}
			if ws.minY[b] < miny {
				miny = ws.minY[b]
			}
			if ws.maxY[b] > maxy {
				maxy = ws.maxY[b]
			}
		}
		side := maxx - minx
		if maxy-miny > side {
			side = maxy - miny
		}
		t.radius = 0.5*side + 1e-5

		root := t.nnodes
		ws.posX[root] = 0.5 * (minx + maxx)
		ws.posY[root] = 0.5 * (miny + maxy)
		ws.mass[root] = -1
		ws.state[root] = 0
		ws.startTbl[root] = 0
		for q := 0; q < 4; q++ {
			ws.child[4*root+q] = emptyslot
		}
		atomic.StoreInt32(&t.bottom, int32(root))
		atomic.StoreInt32(&t.maxDepth, 1)
	})
}

// clearChildren resets the quadrant slots of every internal cell below the
// root. The root's slots are reset by the bounding-box merge.
func (t *quadtree) clearChildren() {
	ws := t.ws
	lo, hi := 4*t.n, 4*t.nnodes
	launchRanges(hi-lo, t.workers, func(_, start, end int) {
		for k := lo + start; k < lo+end; k++ {
			ws.child[k] = emptyslot
		}
	})
}

// insertAll inserts every point concurrently, then reports whether the cell
// arena overflowed.
func (t *quadtree) insertAll() error {
	launchRanges(t.n, t.workers, func(_, start, end int) {
		for i := start; i < end; i++ {
			t.insertPoint(i)
			if atomic.LoadInt32(&t.overflow) != 0 {
				return
			}
		}
	})
	if atomic.LoadInt32(&t.overflow) != 0 {
		return fmt.Errorf("tsne: quadtree cell capacity exceeded (nnodes=%d, n=%d)",
			t.nnodes, t.n)
	}
	return nil
}

// insertPoint descends from the root to the quadrant slot where point i
// belongs. An empty slot is claimed by compare-and-swap; a slot occupied by
// another leaf is locked while spliceLeaf grows the tree beneath it. Lost
// races retry from the current node, not from the root.
func (t *quadtree) insertPoint(i int) {
	ws := t.ws
	px, py := ws.posX[i], ws.posY[i]

	node := t.nnodes
	r := t.radius
	depth := int32(1)
	j := childQuadrant(px, py, ws.posX[node], ws.posY[node])
	spin := 0

	for {
		if atomic.LoadInt32(&t.overflow) != 0 {
			return
		}
		ch := atomic.LoadInt32(&ws.child[4*node+j])
		for ch >= int32(t.n) {
			node = int(ch)
			depth++
			r *= 0.5
			j = childQuadrant(px, py, ws.posX[node], ws.posY[node])
			ch = atomic.LoadInt32(&ws.child[4*node+j])
		}

		switch {
		case ch == lockedSlot:
			// Another inserter is splicing here; wait for it to publish.
			spin = spinWait(spin)

		case ch == emptyslot:
			if atomic.CompareAndSwapInt32(&ws.child[4*node+j], emptyslot, int32(i)) {
				atomicMaxInt32(&t.maxDepth, depth)
				return
			}

		default:
			// Slot holds leaf ch: lock it and grow the tree one or more
			// levels until the two points separate.
			if atomic.CompareAndSwapInt32(&ws.child[4*node+j], ch, lockedSlot) {
				t.spliceLeaf(i, int(ch), node, j, r, depth)
				return
			}
		}
	}
}

// spliceLeaf replaces the locked quadrant slot 4*node+j, currently holding
// leaf old, with a chain of newly allocated cells deep enough for old and
// point i to occupy different quadrants. The chain is built unpublished and
// made visible with a single atomic store into the locked slot.
func (t *quadtree) spliceLeaf(i, old, node, j int, r float64, depth int32) {
	ws := t.ws
	locked := 4*node + j
	patch := int32(-1)

	px, py := ws.posX[i], ws.posY[i]
	ox, oy := ws.posX[old], ws.posY[old]
	cx, cy := ws.posX[node], ws.posY[node]
	cur := node
	jq := j

	for {
		cell := int(atomic.AddInt32(&t.bottom, -1))
		if cell <= t.n {
			atomic.StoreInt32(&t.overflow, 1)
			return
		}

		half := 0.5 * r
		nx, ny := cx-half, cy-half
		if jq&1 != 0 {
			nx = cx + half
		}
		if jq&2 != 0 {
			ny = cy + half
		}
		ws.posX[cell] = nx
		ws.posY[cell] = ny

		if patch != -1 {
			// Inner link; the subtree is still unpublished, plain store is fine.
			ws.child[4*cur+jq] = int32(cell)
		}
		if int32(cell) > patch {
			patch = int32(cell)
		}
		depth++
		r = half

		jo := childQuadrant(ox, oy, nx, ny)
		jq = childQuadrant(px, py, nx, ny)
		if depth >= maxSplitDepth && jq == jo {
			// Effectively coincident: stop subdividing, share the cell.
			jq = (jo + 1) % 4
		}
		ws.child[4*cell+jo] = int32(old)
		if jq != jo {
			ws.child[4*cell+jq] = int32(i)
			break
		}
		cur = cell
		cx, cy = nx, ny
	}

	atomicMaxInt32(&t.maxDepth, depth)
	atomic.StoreInt32(&ws.child[locked], patch)
}

// clearAggregates resets mass, start offsets and summarization state for
// every cell allocated this iteration.
func (t *quadtree) clearAggregates() {
	ws := t.ws
	bottom := int(atomic.LoadInt32(&t.bottom))
	launchRanges(t.nnodes-bottom, t.workers, func(_, start, end int) {
		for k := bottom + start; k < bottom+end; k++ {
			ws.mass[k] = -1
			ws.startTbl[k] = -1
			ws.state[k] = 0
		}
	})
}

// summarize aggregates child count, mass and center-of-mass per cell, bottom
// up. Cells are processed in increasing index order, so a cell's children
// (always allocated below it) belong either to an earlier position in the
// same worker's range or to another worker; the per-cell state flag is the
// lock-free handshake for the latter. The mass is written before the Ready
// store and read after the Ready load, so plain float access is safe.
func (t *quadtree) summarize() {
	ws := t.ws
	n := t.n
	bottom := int(atomic.LoadInt32(&t.bottom))
	cells := t.nnodes + 1 - bottom

	launchRanges(cells, t.workers, func(_, start, end int) {
		for idx := start; idx < end; idx++ {
			k := bottom + idx
			var m, cmx, cmy float64
			var cnt int32
			for q := 0; q < 4; q++ {
				c := int(ws.child[4*k+q])
				if c < 0 {
					continue
				}
				if c >= n {
					spin := 0
					for atomic.LoadUint32(&ws.state[c]) == 0 {
						spin = spinWait(spin)
					}
					cnt += ws.countTbl[c]
				} else {
					cnt++
				}
				cm := ws.mass[c]
				m += cm
				cmx += cm * ws.posX[c]
				cmy += cm * ws.posY[c]
			}
			ws.countTbl[k] = cnt
			ws.posX[k] = cmx / m
			ws.posY[k] = cmy / m
			ws.mass[k] = m
			atomic.StoreUint32(&ws.state[k], 1)
		}
	})
}

// sortBodies fills ws.sorted with all leaf indices in depth-first order so
// the repulsion pass visits coarse aggregates before fine detail. Cells are
// processed in decreasing index order; each cell consumes the start offset
// its parent published and publishes offsets for its own children.
func (t *quadtree) sortBodies() {
	ws := t.ws
	n := t.n
	bottom := int(atomic.LoadInt32(&t.bottom))
	cells := t.nnodes + 1 - bottom

	launchRanges(cells, t.workers, func(_, start, end int) {
		for idx := start; idx < end; idx++ {
			k := t.nnodes - idx
			spin := 0
			s := atomic.LoadInt32(&ws.startTbl[k])
			for s < 0 {
				spin = spinWait(spin)
				s = atomic.LoadInt32(&ws.startTbl[k])
			}
			for q := 0; q < 4; q++ {
				c := int(ws.child[4*k+q])
				if c >= n {
					atomic.StoreInt32(&ws.startTbl[c], s)
					s += ws.countTbl[c]
				} else if c >= 0 {
					ws.sorted[s] = int32(c)
					s++
				}
			}
		}
	})
}
