package resize

import (
	"image"
	"testing"

	"gocv.io/x/gocv"
	"go.viam.com/test"

	"github.com/model-collapse/aug-balance/internal/bbox"
)

func newImage(w, h int) gocv.Mat {
	img := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
	pix, _ := img.DataPtrUint8()
	for i := range pix {
		pix[i] = uint8(i % 256)
	}
	return img
}

func TestResizeIdentity(t *testing.T) {
	img := newImage(80, 60)
	defer img.Close()
	boxes := []bbox.Box{{XMin: 1, YMin: 2, XMax: 30, YMax: 40}}

	out, got, err := Resize(img, boxes, image.Pt(80, 60))
	test.That(t, err, test.ShouldBeNil)
	defer out.Close()
	test.That(t, got, test.ShouldResemble, boxes)
	test.That(t, out.ToBytes(), test.ShouldResemble, img.ToBytes())
}

func TestResizeScalingLaw(t *testing.T) {
	img := newImage(200, 100)
	defer img.Close()
	boxes := []bbox.Box{
		{XMin: 10, YMin: 20, XMax: 30, YMax: 40},
		{XMin: 0, YMin: 0, XMax: 200, YMax: 100},
		{XMin: 99, YMin: 49, XMax: 100, YMax: 50},
	}

	for _, dims := range []image.Point{image.Pt(640, 640), image.Pt(50, 25), image.Pt(301, 17)} {
		out, got, err := Resize(img, boxes, dims)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, out.Cols(), test.ShouldEqual, dims.X)
		test.That(t, out.Rows(), test.ShouldEqual, dims.Y)

		sx, sy := float64(dims.X)/200, float64(dims.Y)/100
		for i, b := range got {
			test.That(t, b.XMin, test.ShouldEqual, boxes[i].XMin*sx)
			test.That(t, b.YMin, test.ShouldEqual, boxes[i].YMin*sy)
			test.That(t, b.XMax, test.ShouldEqual, boxes[i].XMax*sx)
			test.That(t, b.YMax, test.ShouldEqual, boxes[i].YMax*sy)
			test.That(t, b.Valid(), test.ShouldBeTrue)
		}
		out.Close()
	}
}

func TestResizeErrors(t *testing.T) {
	img := newImage(10, 10)
	defer img.Close()
	out, _, err := Resize(img, nil, image.Pt(0, 10))
	test.That(t, err, test.ShouldNotBeNil)
	// nothing allocated, nothing to close
	test.That(t, out, test.ShouldResemble, gocv.Mat{})

	empty := gocv.NewMat()
	defer empty.Close()
	out, _, err = Resize(empty, nil, image.Pt(10, 10))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, out, test.ShouldResemble, gocv.Mat{})
}
