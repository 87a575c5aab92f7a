// Package bbox holds the axis-aligned box geometry shared by the augmentation stages.
package bbox

import (
	"image"
	"math"
)

// Box is a pixel-space rectangle in Pascal VOC order. Coordinates stay floating point through
// the pipeline and are truncated only when an annotation is written.
type Box struct {
	XMin float64
	YMin float64
	XMax float64
	YMax float64
}

// FromRect converts an integer rectangle.
func FromRect(r image.Rectangle) Box {
	return Box{
		XMin: float64(r.Min.X),
		YMin: float64(r.Min.Y),
		XMax: float64(r.Max.X),
		YMax: float64(r.Max.Y),
	}
}

// Rect truncates the box to integer coordinates.
func (b Box) Rect() image.Rectangle {
	return image.Rect(int(b.XMin), int(b.YMin), int(b.XMax), int(b.YMax))
}

func (b Box) Width() float64 {
	return b.XMax - b.XMin
}

func (b Box) Height() float64 {
	return b.YMax - b.YMin
}

// Valid reports whether the box has a positive area.
func (b Box) Valid() bool {
	return b.XMin < b.XMax && b.YMin < b.YMax
}

// Scale multiplies x coordinates by sx and y coordinates by sy.
func (b Box) Scale(sx, sy float64) Box {
	return Box{
		XMin: b.XMin * sx,
		YMin: b.YMin * sy,
		XMax: b.XMax * sx,
		YMax: b.YMax * sy,
	}
}

// Translate shifts the box by (dx, dy).
func (b Box) Translate(dx, dy float64) Box {
	return Box{
		XMin: b.XMin + dx,
		YMin: b.YMin + dy,
		XMax: b.XMax + dx,
		YMax: b.YMax + dy,
	}
}

// Clip intersects the box with [0,w]x[0,h].
func (b Box) Clip(w, h int) Box {
	fw, fh := float64(w), float64(h)
	return Box{
		XMin: math.Max(0, math.Min(b.XMin, fw)),
		YMin: math.Max(0, math.Min(b.YMin, fh)),
		XMax: math.Max(0, math.Min(b.XMax, fw)),
		YMax: math.Max(0, math.Min(b.YMax, fh)),
	}
}

// Sanitize clips every box to a w by h image and drops the boxes, with their labels, that end
// up empty. The returned slices are freshly allocated.
func Sanitize(boxes []Box, labels []string, w, h int) ([]Box, []string) {
	outBoxes := make([]Box, 0, len(boxes))
	outLabels := make([]string, 0, len(labels))
	for i, b := range boxes {
		if i >= len(labels) {
			break
		}
		c := b.Clip(w, h)
		if !c.Valid() {
			continue
		}
		outBoxes = append(outBoxes, c)
		outLabels = append(outLabels, labels[i])
	}
	return outBoxes, outLabels
}
