package model

import (
	"math"
	"math/rand"
)

const lnEps = 1e-5

// attention is a single transformer encoder block over a scalar sequence:
// embedding with sinusoidal positions, multi-head self-attention, residual and
// layer norm, position-wise feed-forward, residual and layer norm, mean pooling,
// dropout and a dense output.
type attention struct {
	d, heads, ffn int
	dropout       float64

	we, be         *param // d
	wq, wk, wv, wo *param // d x d
	bq, bk, bv, bo *param // d
	g1, b1         *param // d
	w1             *param // ffn x d
	c1             *param // ffn
	w2             *param // d x ffn
	c2             *param // d
	g2, b2         *param // d
	out, ob        *param
}

func newAttention(d, heads, ffn int, dropout float64, rng *rand.Rand) *attention {
	return &attention{
		d: d, heads: heads, ffn: ffn, dropout: dropout,
		we:  newParam("embed/w", d).glorot(rng, 1, d),
		be:  newParam("embed/b", d),
		wq:  newParam("mha/wq", d*d).glorot(rng, d, d),
		wk:  newParam("mha/wk", d*d).glorot(rng, d, d),
		wv:  newParam("mha/wv", d*d).glorot(rng, d, d),
		wo:  newParam("mha/wo", d*d).glorot(rng, d, d),
		bq:  newParam("mha/bq", d),
		bk:  newParam("mha/bk", d),
		bv:  newParam("mha/bv", d),
		bo:  newParam("mha/bo", d),
		g1:  newParam("ln1/gamma", d).fill(1),
		b1:  newParam("ln1/beta", d),
		w1:  newParam("ffn/w1", ffn*d).glorot(rng, d, ffn),
		c1:  newParam("ffn/b1", ffn),
		w2:  newParam("ffn/w2", d*ffn).glorot(rng, ffn, d),
		c2:  newParam("ffn/b2", d),
		g2:  newParam("ln2/gamma", d).fill(1),
		b2:  newParam("ln2/beta", d),
		out: newParam("dense/w", d).glorot(rng, d, 1),
		ob:  newParam("dense/b", 1),
	}
}

func (n *attention) params() []*param {
	return []*param{
		n.we, n.be, n.wq, n.wk, n.wv, n.wo, n.bq, n.bk, n.bv, n.bo,
		n.g1, n.b1, n.w1, n.c1, n.w2, n.c2, n.g2, n.b2, n.out, n.ob,
	}
}

func positional(pos, d int) []float64 {
	pe := make([]float64, d)
	for i := 0; i < d; i++ {
		angle := float64(pos) / math.Pow(10000, float64(2*(i/2))/float64(d))
		if i%2 == 0 {
			pe[i] = math.Sin(angle)
		} else {
			pe[i] = math.Cos(angle)
		}
	}
	return pe
}

// layerNorm caches what the backward pass needs.
type layerNorm struct {
	xhat   []float64
	invStd float64
}

func lnForward(x, gamma, beta []float64) ([]float64, layerNorm) {
	d := float64(len(x))
	var mean float64
	for _, v := range x {
		mean += v
	}
	mean /= d
	var vr float64
	for _, v := range x {
		vr += (v - mean) * (v - mean)
	}
	vr /= d
	inv := 1 / math.Sqrt(vr+lnEps)
	xhat := make([]float64, len(x))
	y := make([]float64, len(x))
	for i, v := range x {
		xhat[i] = (v - mean) * inv
		y[i] = gamma[i]*xhat[i] + beta[i]
	}
	return y, layerNorm{xhat: xhat, invStd: inv}
}

func lnBackward(dy []float64, c layerNorm, gamma, gGamma, gBeta []float64) []float64 {
	d := float64(len(dy))
	dxhat := make([]float64, len(dy))
	var sum, sumX float64
	for i := range dy {
		gGamma[i] += dy[i] * c.xhat[i]
		gBeta[i] += dy[i]
		dxhat[i] = dy[i] * gamma[i]
		sum += dxhat[i]
		sumX += dxhat[i] * c.xhat[i]
	}
	dx := make([]float64, len(dy))
	for i := range dx {
		dx[i] = c.invStd / d * (d*dxhat[i] - sum - c.xhat[i]*sumX)
	}
	return dx
}

func (n *attention) forward(x []float64, train bool, rng *rand.Rand) (float64, func(dy float64)) {
	L, d, F := len(x), n.d, n.ffn
	dk := d / n.heads
	scale := 1 / math.Sqrt(float64(dk))

	e := make([][]float64, L)
	q := make([][]float64, L)
	k := make([][]float64, L)
	v := make([][]float64, L)
	for t := 0; t < L; t++ {
		pe := positional(t, d)
		e[t] = make([]float64, d)
		for j := 0; j < d; j++ {
			e[t][j] = n.we.w[j]*x[t] + n.be.w[j] + pe[j]
		}
		q[t] = append([]float64(nil), n.bq.w...)
		k[t] = append([]float64(nil), n.bk.w...)
		v[t] = append([]float64(nil), n.bv.w...)
		matVecAdd(q[t], n.wq.w, d, e[t])
		matVecAdd(k[t], n.wk.w, d, e[t])
		matVecAdd(v[t], n.wv.w, d, e[t])
	}

	// attn[h][i][j] is the weight of position j for query i in head h.
	attn := make([][][]float64, n.heads)
	ctx := make([][]float64, L)
	for i := range ctx {
		ctx[i] = make([]float64, d)
	}
	for h := 0; h < n.heads; h++ {
		lo, hi := h*dk, (h+1)*dk
		attn[h] = make([][]float64, L)
		for i := 0; i < L; i++ {
			row := make([]float64, L)
			maxS := math.Inf(-1)
			for j := 0; j < L; j++ {
				var s float64
				for c := lo; c < hi; c++ {
					s += q[i][c] * k[j][c]
				}
				row[j] = s * scale
				if row[j] > maxS {
					maxS = row[j]
				}
			}
			var z float64
			for j := range row {
				row[j] = math.Exp(row[j] - maxS)
				z += row[j]
			}
			for j := range row {
				row[j] /= z
				for c := lo; c < hi; c++ {
					ctx[i][c] += row[j] * v[j][c]
				}
			}
			attn[h][i] = row
		}
	}

	n1 := make([][]float64, L)
	ln1 := make([]layerNorm, L)
	u := make([][]float64, L)
	hr := make([][]float64, L)
	ln2 := make([]layerNorm, L)
	pool := make([]float64, d)
	for i := 0; i < L; i++ {
		a := append([]float64(nil), n.bo.w...)
		matVecAdd(a, n.wo.w, d, ctx[i])
		for j := range a {
			a[j] += e[i][j]
		}
		n1[i], ln1[i] = lnForward(a, n.g1.w, n.b1.w)

		u[i] = append([]float64(nil), n.c1.w...)
		matVecAdd(u[i], n.w1.w, d, n1[i])
		hr[i] = make([]float64, F)
		for j, val := range u[i] {
			if val > 0 {
				hr[i][j] = val
			}
		}
		f := append([]float64(nil), n.c2.w...)
		matVecAdd(f, n.w2.w, F, hr[i])
		for j := range f {
			f[j] += n1[i][j]
		}
		var n2 []float64
		n2, ln2[i] = lnForward(f, n.g2.w, n.b2.w)
		for j := range pool {
			pool[j] += n2[j] / float64(L)
		}
	}

	mask := dropoutMask(d, n.dropout, train, rng)
	pd := applyMask(pool, mask)
	y := n.ob.w[0]
	for j := 0; j < d; j++ {
		y += n.out.w[j] * pd[j]
	}
	if !train {
		return y, nil
	}

	return y, func(dy float64) {
		n.ob.g[0] += dy
		dpool := make([]float64, d)
		for j := 0; j < d; j++ {
			n.out.g[j] += dy * pd[j]
			dpool[j] = dy * n.out.w[j] / float64(L)
			if mask != nil {
				dpool[j] *= mask[j]
			}
		}

		de := make([][]float64, L)
		dctx := make([][]float64, L)
		for i := 0; i < L; i++ {
			dr2 := lnBackward(dpool, ln2[i], n.g2.w, n.g2.g, n.b2.g)
			dn1 := append([]float64(nil), dr2...)
			for j := range dr2 {
				n.c2.g[j] += dr2[j]
			}
			outerAdd(n.w2.g, F, dr2, hr[i])
			dhr := make([]float64, F)
			matTVecAdd(dhr, n.w2.w, F, dr2)
			for j := range dhr {
				if u[i][j] <= 0 {
					dhr[j] = 0
				}
				n.c1.g[j] += dhr[j]
			}
			outerAdd(n.w1.g, d, dhr, n1[i])
			matTVecAdd(dn1, n.w1.w, d, dhr)

			dr1 := lnBackward(dn1, ln1[i], n.g1.w, n.g1.g, n.b1.g)
			de[i] = append([]float64(nil), dr1...)
			for j := range dr1 {
				n.bo.g[j] += dr1[j]
			}
			outerAdd(n.wo.g, d, dr1, ctx[i])
			dctx[i] = make([]float64, d)
			matTVecAdd(dctx[i], n.wo.w, d, dr1)
		}

		dq := make([][]float64, L)
		dkk := make([][]float64, L)
		dv := make([][]float64, L)
		for i := 0; i < L; i++ {
			dq[i] = make([]float64, d)
			dkk[i] = make([]float64, d)
			dv[i] = make([]float64, d)
		}
		dA := make([]float64, L)
		for h := 0; h < n.heads; h++ {
			lo, hi := h*dk, (h+1)*dk
			for i := 0; i < L; i++ {
				row := attn[h][i]
				var dot float64
				for j := 0; j < L; j++ {
					var s float64
					for c := lo; c < hi; c++ {
						s += dctx[i][c] * v[j][c]
						dv[j][c] += row[j] * dctx[i][c]
					}
					dA[j] = s
					dot += row[j] * s
				}
				for j := 0; j < L; j++ {
					ds := row[j] * (dA[j] - dot) * scale
					if ds == 0 {
						continue
					}
					for c := lo; c < hi; c++ {
						dq[i][c] += ds * k[j][c]
						dkk[j][c] += ds * q[i][c]
					}
				}
			}
		}

		for i := 0; i < L; i++ {
			for j := 0; j < d; j++ {
				n.bq.g[j] += dq[i][j]
				n.bk.g[j] += dkk[i][j]
				n.bv.g[j] += dv[i][j]
			}
			outerAdd(n.wq.g, d, dq[i], e[i])
			outerAdd(n.wk.g, d, dkk[i], e[i])
			outerAdd(n.wv.g, d, dv[i], e[i])
			matTVecAdd(de[i], n.wq.w, d, dq[i])
			matTVecAdd(de[i], n.wk.w, d, dkk[i])
			matTVecAdd(de[i], n.wv.w, d, dv[i])
			for j := 0; j < d; j++ {
				n.we.g[j] += de[i][j] * x[i]
				n.be.g[j] += de[i][j]
			}
		}
	}
}
