// Package resize rescales an image and its boxes to a fixed size.
package resize

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/model-collapse/aug-balance/internal/bbox"
)

// Resize scales img to exactly dims with bilinear interpolation and scales every box by the
// same per-axis factors. The returned Mat is new and owned by the caller; when img already
// has the requested size it is a plain copy and the boxes are returned as given. On error
// the Mat is the zero value and holds nothing to close.
func Resize(img gocv.Mat, boxes []bbox.Box, dims image.Point) (gocv.Mat, []bbox.Box, error) {
	if dims.X <= 0 || dims.Y <= 0 {
		return gocv.Mat{}, nil, errors.Errorf("invalid target size %v", dims)
	}
	if img.Empty() {
		return gocv.Mat{}, nil, errors.New("cannot resize an empty image")
	}

	w, h := img.Cols(), img.Rows()
	if w == dims.X && h == dims.Y {
		return img.Clone(), boxes, nil
	}

	sx := float64(dims.X) / float64(w)
	sy := float64(dims.Y) / float64(h)

	out := gocv.NewMat()
	gocv.Resize(img, &out, dims, 0, 0, gocv.InterpolationLinear)

	scaled := make([]bbox.Box, len(boxes))
	for i, b := range boxes {
		scaled[i] = b.Scale(sx, sy)
	}
	return out, scaled, nil
}
