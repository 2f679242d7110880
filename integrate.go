package tsne

import "math"

// integrationPass applies one gradient-descent step to every point: the
// attractive and normalized repulsive forces combine into a gradient, the
// per-dimension adaptive gain grows by 0.2 while the gradient keeps pushing
// the way the running update already moves and decays by 0.8 when it flips,
// floored at minGain. The momentum-damped velocity then updates the position,
// clamped to the slowly growing [-maxBound, maxBound] box. A final pass
// recenters the embedding on the origin using per-block running sums.
func integrationPass(ws *workspace, n int, zNorm, eta, momentum, minGain, maxBound float64, workers int) {
	blocks := rangeCount(n, workers)
	for b := 0; b < 2*blocks; b++ {
		ws.sumScratch[b] = 0
	}

	launchRanges(n, workers, func(w, start, end int) {
		var sx, sy float64
		for i := start; i < end; i++ {
			fx := ws.attrX[i] - zNorm*ws.repX[i]
			fy := ws.attrY[i] - zNorm*ws.repY[i]

			gx := updateGain(ws.gains[i], fx, ws.oldForces[i], minGain)
			gy := updateGain(ws.gains[n+i], fy, ws.oldForces[n+i], minGain)
			ws.gains[i] = gx
			ws.gains[n+i] = gy

			vx := momentum*ws.oldForces[i] - eta*gx*fx
			vy := momentum*ws.oldForces[n+i] - eta*gy*fy
			ws.oldForces[i] = vx
			ws.oldForces[n+i] = vy

			x := clampAbs(ws.posX[i]+vx, maxBound)
			y := clampAbs(ws.posY[i]+vy, maxBound)
			ws.posX[i] = x
			ws.posY[i] = y
			sx += x
			sy += y
		}
		ws.sumScratch[2*w] = sx
		ws.sumScratch[2*w+1] = sy
	})

	var sx, sy float64
	for b := 0; b < blocks; b++ {
		sx += ws.sumScratch[2*b]
		sy += ws.sumScratch[2*b+1]
	}
	meanX := sx / float64(n)
	meanY := sy / float64(n)

	launchRanges(n, workers, func(_, start, end int) {
		for i := start; i < end; i++ {
			ws.posX[i] -= meanX
			ws.posY[i] -= meanY
		}
	})
}

// updateGain adapts a per-dimension gain: a gradient opposing the stored
// velocity means the descent direction is being held, so the gain grows;
// a gradient aligned with the velocity means overshoot, so it decays.
func updateGain(gain, force, velocity, minGain float64) float64 {
	if math.Signbit(force) != math.Signbit(velocity) {
		gain += 0.2
	} else {
		gain *= 0.8
	}
	if gain < minGain {
		gain = minGain
	}
	return gain
}

func clampAbs(v, bound float64) float64 {
	if v > bound {
		return bound
	}
	if v < -bound {
		return -bound
	}
	return v
}
