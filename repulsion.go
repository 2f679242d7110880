package tsne

import "sync/atomic"

// repulsionPass estimates the repulsive force on every point by traversing
// the sorted quadtree with the Barnes-Hut admissibility criterion: a node of
// squared width w2 at squared distance dsq stands in for all of its bodies
// when w2 < theta^2 * dsq. Each admissible node (or leaf) contributes a force
// proportional to mass/(dsq+epssq) and mass/(1+dsq) to the normalization
// term. Returns the total normalization sum Z; each point's own leaf
// contributes exactly 1 to it and nothing to the force, which the caller
// removes via 1/(Z-N).
//
// Every worker traverses with its own explicit stack bounded by the tree
// depth, visiting points in the depth-first order produced by sortBodies for
// memory coherence.
func repulsionPass(t *quadtree, theta, epssq float64) float64 {
	ws := t.ws
	n := t.n
	theta2 := theta * theta
	stackCap := 3*int(atomic.LoadInt32(&t.maxDepth)) + 8
	rootW2 := 4 * t.radius * t.radius

	blocks := rangeCount(n, t.workers)
	for b := 0; b < blocks; b++ {
		ws.zScratch[b] = 0
	}

	launchRanges(n, t.workers, func(w, start, end int) {
		stackNode := make([]int32, stackCap)
		stackW2 := make([]float64, stackCap)
		var zsum float64

		for si := start; si < end; si++ {
			i := int(ws.sorted[si])
			px, py := ws.posX[i], ws.posY[i]
			var vx, vy, norm float64

			stackNode[0] = int32(t.nnodes)
			stackW2[0] = rootW2
			top := 1
			for top > 0 {
				top--
				nd := int(stackNode[top])
				w2 := stackW2[top]

				dx := px - ws.posX[nd]
				dy := py - ws.posY[nd]
				dsq := dx*dx + dy*dy

				if nd < n || w2 < theta2*dsq {
					// Leaf or admissible aggregate: treat as one pseudo-body.
					m := ws.mass[nd]
					norm += m / (1 + dsq)
					f := m / (dsq + epssq)
					vx += dx * f
					vy += dy * f
					continue
				}
				cw := 0.25 * w2
				for q := 0; q < 4; q++ {
					if c := ws.child[4*nd+q]; c >= 0 {
						stackNode[top] = c
						stackW2[top] = cw
						top++
					}
				}
			}

			ws.repX[i] = vx
			ws.repY[i] = vy
			zsum += norm
		}
		ws.zScratch[w] = zsum
	})

	var z float64
	for b := 0; b < blocks; b++ {
		z += ws.zScratch[b]
	}
	return z
}

// repulsionExact computes the same quantities by direct O(N^2) pairwise
// summation. Kept as the reference the approximation is validated against.
func repulsionExact(posX, posY, repX, repY []float64, n int, epssq float64) float64 {
	var z float64
	for i := 0; i < n; i++ {
		var vx, vy, norm float64
		for j := 0; j < n; j++ {
			dx := posX[i] - posX[j]
			dy := posY[i] - posY[j]
			dsq := dx*dx + dy*dy
			norm += 1 / (1 + dsq)
			f := 1 / (dsq + epssq)
			vx += dx * f
			vy += dy * f
		}
		repX[i] = vx
		repY[i] = vy
		z += norm
	}
	return z
}
