package augment

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// pixels3 exposes the interleaved bytes of an 8 bit, 3 channel Mat.
func pixels3(m *gocv.Mat) ([]uint8, error) {
	if m.Type() != gocv.MatTypeCV8UC3 {
		return nil, errors.Errorf("unsupported mat type %v, want 8UC3", m.Type())
	}
	return m.DataPtrUint8()
}

// clone3 copies src and returns the copy with its pixel bytes.
func clone3(src gocv.Mat) (gocv.Mat, []uint8, error) {
	dst := src.Clone()
	pix, err := pixels3(&dst)
	if err != nil {
		dst.Close()
		return gocv.Mat{}, nil, err
	}
	return dst, pix, nil
}

func clampByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.Round(v))
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// uniformInt draws from [lo, hi].
func uniformInt(rng *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.Intn(hi-lo+1)
}

type lut [256]uint8

func newLUT(fn func(v float64) float64) *lut {
	var t lut
	for i := range t {
		t[i] = clampByte(fn(float64(i)))
	}
	return &t
}

func (t *lut) apply(pix []uint8) {
	for i, v := range pix {
		pix[i] = t[v]
	}
}

// mapLUT returns a copy of src with every byte passed through fn.
func mapLUT(src gocv.Mat, fn func(v float64) float64) (gocv.Mat, error) {
	dst, pix, err := clone3(src)
	if err != nil {
		return dst, err
	}
	newLUT(fn).apply(pix)
	return dst, nil
}

func luma(b, g, r uint8) float64 {
	return 0.114*float64(b) + 0.587*float64(g) + 0.299*float64(r)
}
