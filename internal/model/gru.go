package model

import (
	"math"
	"math/rand"
)

// gru is a single gated recurrent layer over a scalar sequence with a dense
// head on the last hidden state. Gate blocks are stacked z, r, h.
type gru struct {
	hidden  int
	dropout float64

	wx  *param // 3H input weights
	u   *param // 3H x H recurrent weights
	b   *param // 3H
	out *param // H
	ob  *param // 1
}

func newGRU(hidden int, dropout float64, rng *rand.Rand) *gru {
	h := hidden
	return &gru{
		hidden:  h,
		dropout: dropout,
		wx:      newParam("gru/wx", 3*h).glorot(rng, 1, 3*h),
		u:       newParam("gru/u", 3*h*h).glorot(rng, h, 3*h),
		b:       newParam("gru/b", 3*h),
		out:     newParam("dense/w", h).glorot(rng, h, 1),
		ob:      newParam("dense/b", 1),
	}
}

func (n *gru) params() []*param { return []*param{n.wx, n.u, n.b, n.out, n.ob} }

type gruStep struct {
	x       float64
	hPrev   []float64
	z, r, c []float64
	rh      []float64
}

func (n *gru) forward(x []float64, train bool, rng *rand.Rand) (float64, func(dy float64)) {
	H := n.hidden
	uz := n.u.w[0 : H*H]
	ur := n.u.w[H*H : 2*H*H]
	uc := n.u.w[2*H*H : 3*H*H]

	h := make([]float64, H)
	steps := make([]gruStep, len(x))
	for t, xt := range x {
		st := gruStep{x: xt, hPrev: h, z: make([]float64, H), r: make([]float64, H), c: make([]float64, H), rh: make([]float64, H)}
		matVec(st.z, uz, H, h)
		matVec(st.r, ur, H, h)
		for j := 0; j < H; j++ {
			st.z[j] = sigmoid(st.z[j] + n.wx.w[j]*xt + n.b.w[j])
			st.r[j] = sigmoid(st.r[j] + n.wx.w[H+j]*xt + n.b.w[H+j])
			st.rh[j] = st.r[j] * h[j]
		}
		matVec(st.c, uc, H, st.rh)
		next := make([]float64, H)
		for j := 0; j < H; j++ {
			st.c[j] = math.Tanh(st.c[j] + n.wx.w[2*H+j]*xt + n.b.w[2*H+j])
			next[j] = (1-st.z[j])*h[j] + st.z[j]*st.c[j]
		}
		steps[t] = st
		h = next
	}

	mask := dropoutMask(H, n.dropout, train, rng)
	hd := applyMask(h, mask)
	var y float64
	for j := 0; j < H; j++ {
		y += n.out.w[j] * hd[j]
	}
	y += n.ob.w[0]
	if !train {
		return y, nil
	}

	return y, func(dy float64) {
		n.ob.g[0] += dy
		dh := make([]float64, H)
		for j := 0; j < H; j++ {
			n.out.g[j] += dy * hd[j]
			dh[j] = dy * n.out.w[j]
			if mask != nil {
				dh[j] *= mask[j]
			}
		}
		gz := n.u.g[0 : H*H]
		gr := n.u.g[H*H : 2*H*H]
		gc := n.u.g[2*H*H : 3*H*H]
		daz := make([]float64, H)
		dar := make([]float64, H)
		dac := make([]float64, H)
		drh := make([]float64, H)
		for t := len(steps) - 1; t >= 0; t-- {
			st := steps[t]
			dPrev := make([]float64, H)
			for j := 0; j < H; j++ {
				dz := dh[j] * (st.c[j] - st.hPrev[j])
				dc := dh[j] * st.z[j]
				dPrev[j] = dh[j] * (1 - st.z[j])
				dac[j] = dc * (1 - st.c[j]*st.c[j])
				daz[j] = dz * st.z[j] * (1 - st.z[j])
			}
			for j := range drh {
				drh[j] = 0
			}
			matTVecAdd(drh, uc, H, dac)
			outerAdd(gc, H, dac, st.rh)
			for j := 0; j < H; j++ {
				dr := drh[j] * st.hPrev[j]
				dPrev[j] += drh[j] * st.r[j]
				dar[j] = dr * st.r[j] * (1 - st.r[j])
			}
			outerAdd(gz, H, daz, st.hPrev)
			outerAdd(gr, H, dar, st.hPrev)
			matTVecAdd(dPrev, uz, H, daz)
			matTVecAdd(dPrev, ur, H, dar)
			for j := 0; j < H; j++ {
				n.wx.g[j] += daz[j] * st.x
				n.wx.g[H+j] += dar[j] * st.x
				n.wx.g[2*H+j] += dac[j] * st.x
				n.b.g[j] += daz[j]
				n.b.g[H+j] += dar[j]
				n.b.g[2*H+j] += dac[j]
			}
			dh = dPrev
		}
	}
}
