package tsne

// normsPass fills the squared-norm arrays used by the attraction pass:
// norm[i] = |y_i|^2 and normAdd1[i] = |y_i|^2 + 1, so that a pair's Student-t
// denominator 1 + |y_i - y_j|^2 reduces to normAdd1[i] + norm[j] - 2*y_i.y_j.
func normsPass(ws *workspace, n, workers int) {
	launchRanges(n, workers, func(_, start, end int) {
		for i := start; i < end; i++ {
			sq := ws.posX[i]*ws.posX[i] + ws.posY[i]*ws.posY[i]
			ws.norm[i] = sq
			ws.normAdd1[i] = sq + 1
		}
	})
}

// attractionPass computes exact attractive forces from the sparse affinity
// graph in O(NNZ). Every stored triplet (r, c, v) contributes the Student-t
// weighted pull v/(1+|y_r-y_c|^2) to both endpoints with opposite signs.
//
// Workers accumulate into private per-worker force stripes which a second
// pass merges per point; that is the deterministic goroutine equivalent of
// the GPU's atomic adds into shared accumulators.
func attractionPass(p *COO, ws *workspace, n, workers int) {
	nnz := p.NNZ()
	blocks := rangeCount(nnz, workers)

	launchRanges(nnz, workers, func(w, start, end int) {
		stripe := ws.attrScratch[w*2*n : (w+1)*2*n]
		for i := range stripe {
			stripe[i] = 0
		}
		for k := start; k < end; k++ {
			r, c := p.Rows[k], p.Cols[k]
			xr, yr := ws.posX[r], ws.posY[r]
			xc, yc := ws.posX[c], ws.posY[c]
			denom := ws.normAdd1[r] + ws.norm[c] - 2*(xr*xc+yr*yc)
			pq := p.Vals[k] / denom
			fx := pq * (xr - xc)
			fy := pq * (yr - yc)
			stripe[r] += fx
			stripe[n+r] += fy
			stripe[c] -= fx
			stripe[n+c] -= fy
		}
	})

	launchRanges(n, workers, func(_, start, end int) {
		for i := start; i < end; i++ {
			var ax, ay float64
			for b := 0; b < blocks; b++ {
				ax += ws.attrScratch[b*2*n+i]
				ay += ws.attrScratch[b*2*n+n+i]
			}
			ws.attrX[i] = ax
			ws.attrY[i] = ay
		}
	})
}
