package augment

import (
	"image"
	"math"
	"math/rand"

	"gocv.io/x/gocv"

	"github.com/model-collapse/aug-balance/internal/bbox"
)

// HorizontalFlip mirrors the image around its vertical axis.
type HorizontalFlip struct{}

func (t *HorizontalFlip) Name() string { return "horizontal_flip" }

func (t *HorizontalFlip) Apply(_ *rand.Rand, img gocv.Mat, boxes []bbox.Box) (gocv.Mat, []bbox.Box, error) {
	w := float64(img.Cols())
	out := gocv.NewMat()
	gocv.Flip(img, &out, 1)

	flipped := make([]bbox.Box, len(boxes))
	for i, b := range boxes {
		flipped[i] = bbox.Box{XMin: w - b.XMax, YMin: b.YMin, XMax: w - b.XMin, YMax: b.YMax}
	}
	return out, flipped, nil
}

// RandomCrop cuts away up to MaxWidthReduce of the width and MaxHeightReduce of the height,
// split randomly between the two opposite sides. Boxes are shifted into the crop; the
// Augmenter clips them afterwards.
type RandomCrop struct {
	MaxHeightReduce float64
	MaxWidthReduce  float64
}

func (t *RandomCrop) Name() string { return "random_crop" }

func (t *RandomCrop) Apply(rng *rand.Rand, img gocv.Mat, boxes []bbox.Box) (gocv.Mat, []bbox.Box, error) {
	rows, cols := img.Rows(), img.Cols()
	mhr := int(float64(rows) * t.MaxHeightReduce)
	mwr := int(float64(cols) * t.MaxWidthReduce)
	hr := rng.Intn(mhr + 1)
	wr := rng.Intn(mwr + 1)
	dy := rng.Intn(hr + 1)
	dx := rng.Intn(wr + 1)

	rect := image.Rect(dx, dy, dx+cols-wr, dy+rows-hr)
	region := img.Region(rect)
	out := region.Clone()
	region.Close()

	moved := make([]bbox.Box, len(boxes))
	for i, b := range boxes {
		moved[i] = b.Translate(-float64(dx), -float64(dy))
	}
	return out, moved, nil
}

// Affine rotates the image around its centre by up to MaxRotation degrees either way, then
// shears it horizontally by up to MaxShear. The output keeps the input size; corners pushed
// out of frame are lost and uncovered areas are black. Each box becomes the axis aligned hull
// of its four transformed corners.
type Affine struct {
	MaxRotation float64
	MaxShear    float64
}

func (t *Affine) Name() string { return "affine" }

func (t *Affine) Apply(rng *rand.Rand, img gocv.Mat, boxes []bbox.Box) (gocv.Mat, []bbox.Box, error) {
	angle := uniform(rng, -t.MaxRotation, t.MaxRotation)
	shear := uniform(rng, -t.MaxShear, t.MaxShear)
	return warp(img, boxes, angle, shear)
}

// warp applies rotation(angle) x shear(shear), both centred on the image.
func warp(img gocv.Mat, boxes []bbox.Box, angle, shear float64) (gocv.Mat, []bbox.Box, error) {
	cols, rows := img.Cols(), img.Rows()
	rot := gocv.GetRotationMatrix2D(image.Pt(cols/2, rows/2), angle, 1)
	defer rot.Close()

	var r [2][3]float64
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			r[y][x] = rot.GetDoubleAt(y, x)
		}
	}

	// shear keeps the centre row in place
	s := [3][3]float64{{1, shear, -shear * float64(rows/2)}, {0, 1, 0}, {0, 0, 1}}
	var m [2][3]float64
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			for k := 0; k < 3; k++ {
				m[y][x] += r[y][k] * s[k][x]
			}
		}
	}

	trans := matFromRows(m[:])
	defer trans.Close()
	out := gocv.NewMat()
	gocv.WarpAffine(img, &out, trans, image.Pt(cols, rows))

	apply := func(x, y float64) (float64, float64) {
		return m[0][0]*x + m[0][1]*y + m[0][2], m[1][0]*x + m[1][1]*y + m[1][2]
	}
	moved := make([]bbox.Box, len(boxes))
	for i, b := range boxes {
		hull := bbox.Box{XMin: math.Inf(1), YMin: math.Inf(1), XMax: math.Inf(-1), YMax: math.Inf(-1)}
		for _, c := range [4][2]float64{{b.XMin, b.YMin}, {b.XMax, b.YMin}, {b.XMin, b.YMax}, {b.XMax, b.YMax}} {
			x, y := apply(c[0], c[1])
			hull.XMin, hull.XMax = math.Min(hull.XMin, x), math.Max(hull.XMax, x)
			hull.YMin, hull.YMax = math.Min(hull.YMin, y), math.Max(hull.YMax, y)
		}
		moved[i] = hull
	}
	return out, moved, nil
}

// matFromRows copies a row major float64 matrix into a 64FC1 Mat.
func matFromRows(rows [][3]float64) gocv.Mat {
	m := gocv.NewMatWithSize(len(rows), 3, gocv.MatTypeCV64FC1)
	for y, row := range rows {
		for x, v := range row {
			m.SetDoubleAt(y, x, v)
		}
	}
	return m
}
