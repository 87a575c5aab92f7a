// Package render draws annotations onto images for previews.
package render

import (
	"image/color"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/model-collapse/aug-balance/internal/bbox"
)

var (
	boxColor   = color.RGBA{255, 255, 0, 0}
	labelColor = color.RGBA{255, 0, 0, 255}
)

// DrawBoxes outlines every box on img in place and writes its label at the bottom right
// corner. Missing labels are left blank.
func DrawBoxes(img *gocv.Mat, boxes []bbox.Box, labels []string) {
	for i, b := range boxes {
		r := b.Rect()
		gocv.Rectangle(img, r, boxColor, 1)
		if i < len(labels) {
			gocv.PutText(img, labels[i], r.Max, gocv.FontHersheyComplex, 0.5, labelColor, 1)
		}
	}
}

// EncodeJPEG compresses img for the wire.
func EncodeJPEG(img gocv.Mat) ([]byte, error) {
	if img.Empty() {
		return nil, errors.New("cannot encode an empty image")
	}
	data, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, errors.Wrap(err, "encoding jpeg")
	}
	return data, nil
}
