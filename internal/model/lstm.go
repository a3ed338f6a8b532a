package model

import (
	"math"
	"math/rand"
)

// lstm is a single long short-term memory layer with a dense head on the last
// hidden state. Gate blocks are stacked i, f, g, o.
type lstm struct {
	hidden  int
	dropout float64

	wx  *param // 4H
	u   *param // 4H x H
	b   *param // 4H, forget block starts at 1
	out *param
	ob  *param
}

func newLSTM(hidden int, dropout float64, rng *rand.Rand) *lstm {
	h := hidden
	n := &lstm{
		hidden:  h,
		dropout: dropout,
		wx:      newParam("lstm/wx", 4*h).glorot(rng, 1, 4*h),
		u:       newParam("lstm/u", 4*h*h).glorot(rng, h, 4*h),
		b:       newParam("lstm/b", 4*h),
		out:     newParam("dense/w", h).glorot(rng, h, 1),
		ob:      newParam("dense/b", 1),
	}
	for j := h; j < 2*h; j++ {
		n.b.w[j] = 1
	}
	return n
}

func (n *lstm) params() []*param { return []*param{n.wx, n.u, n.b, n.out, n.ob} }

type lstmStep struct {
	x          float64
	hPrev      []float64
	cPrev      []float64
	i, f, g, o []float64
	tc         []float64
}

func (n *lstm) forward(x []float64, train bool, rng *rand.Rand) (float64, func(dy float64)) {
	H := n.hidden
	h := make([]float64, H)
	c := make([]float64, H)
	steps := make([]lstmStep, len(x))
	a := make([]float64, 4*H)
	for t, xt := range x {
		matVec(a, n.u.w, H, h)
		st := lstmStep{
			x: xt, hPrev: h, cPrev: c,
			i: make([]float64, H), f: make([]float64, H), g: make([]float64, H), o: make([]float64, H),
			tc: make([]float64, H),
		}
		nh := make([]float64, H)
		nc := make([]float64, H)
		for j := 0; j < H; j++ {
			st.i[j] = sigmoid(a[j] + n.wx.w[j]*xt + n.b.w[j])
			st.f[j] = sigmoid(a[H+j] + n.wx.w[H+j]*xt + n.b.w[H+j])
			st.g[j] = math.Tanh(a[2*H+j] + n.wx.w[2*H+j]*xt + n.b.w[2*H+j])
			st.o[j] = sigmoid(a[3*H+j] + n.wx.w[3*H+j]*xt + n.b.w[3*H+j])
			nc[j] = st.f[j]*c[j] + st.i[j]*st.g[j]
			st.tc[j] = math.Tanh(nc[j])
			nh[j] = st.o[j] * st.tc[j]
		}
		steps[t] = st
		h, c = nh, nc
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
		dc := make([]float64, H)
		da := make([]float64, 4*H)
		for t := len(steps) - 1; t >= 0; t-- {
			st := steps[t]
			for j := 0; j < H; j++ {
				do := dh[j] * st.tc[j]
				dc[j] += dh[j] * st.o[j] * (1 - st.tc[j]*st.tc[j])
				di := dc[j] * st.g[j]
				df := dc[j] * st.cPrev[j]
				dg := dc[j] * st.i[j]
				dc[j] *= st.f[j]
				da[j] = di * st.i[j] * (1 - st.i[j])
				da[H+j] = df * st.f[j] * (1 - st.f[j])
				da[2*H+j] = dg * (1 - st.g[j]*st.g[j])
				da[3*H+j] = do * st.o[j] * (1 - st.o[j])
			}
			outerAdd(n.u.g, H, da, st.hPrev)
			for k, d := range da {
				n.wx.g[k] += d * st.x
				n.b.g[k] += d
			}
			dPrev := make([]float64, H)
			matTVecAdd(dPrev, n.u.w, H, da)
			dh = dPrev
		}
	}
}
