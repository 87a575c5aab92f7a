package extract

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"
	"go.viam.com/test"

	"github.com/model-collapse/aug-balance/internal/bbox"
	"github.com/model-collapse/aug-balance/internal/config"
	"github.com/model-collapse/aug-balance/internal/logging"
)

const fixtureXML = `<annotation>
	<filename>street.png</filename>
	<object><name>car</name><bndbox><xmin>2</xmin><ymin>4</ymin><xmax>12</xmax><ymax>10</ymax></bndbox></object>
	<object><name>person</name><bndbox><xmin>20</xmin><ymin>1</ymin><xmax>28</xmax><ymax>15</ymax></bndbox></object>
	<object><name>car</name><bndbox><xmin>40</xmin><ymin>40</ymin><xmax>50</xmax><ymax>50</ymax></bndbox></object>
</annotation>
`

func writeFixture(t *testing.T, dir string) {
	t.Helper()
	img := gocv.NewMatWithSize(16, 32, gocv.MatTypeCV8UC3)
	defer img.Close()
	pix, err := img.DataPtrUint8()
	test.That(t, err, test.ShouldBeNil)
	for i := range pix {
		pix[i] = 200
	}
	test.That(t, gocv.IMWrite(filepath.Join(dir, "street.png"), img), test.ShouldBeTrue)
	test.That(t, os.WriteFile(filepath.Join(dir, "street.xml"), []byte(fixtureXML), 0o644), test.ShouldBeNil)
}

func readPNG(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	test.That(t, err, test.ShouldBeNil)
	defer f.Close()
	img, err := png.Decode(f)
	test.That(t, err, test.ShouldBeNil)
	return img
}

func TestExtractorRun(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeFixture(t, in)
	// no annotation next to it
	test.That(t, os.WriteFile(filepath.Join(in, "lonely.png"), []byte("x"), 0o644), test.ShouldBeNil)

	e := New(logging.NewTestLogger(t), 2, config.DefaultExtensions)
	m, err := e.Run(context.Background(), in, out)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, m, test.ShouldNotBeNil)

	// the third box lies outside the image
	test.That(t, m.Cutouts, test.ShouldHaveLength, 2)
	test.That(t, m.Counts, test.ShouldResemble, map[string]int{"car": 1, "person": 1})
	test.That(t, m.Cutouts[0].Path, test.ShouldEqual, "car/street_0.png")
	test.That(t, m.Cutouts[1].Path, test.ShouldEqual, "person/street_1.png")
	test.That(t, m.Cutouts[1].Box, test.ShouldResemble, [4]float64{20, 1, 28, 15})

	car := readPNG(t, filepath.Join(out, "car", "street_0.png"))
	test.That(t, car.Bounds().Dx(), test.ShouldEqual, 10)
	test.That(t, car.Bounds().Dy(), test.ShouldEqual, 6)
	_, _, _, a := car.At(5, 3).RGBA()
	test.That(t, a, test.ShouldEqual, 0xffff)

	loaded, err := LoadManifest(filepath.Join(out, ManifestName))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, loaded.Counts, test.ShouldResemble, m.Counts)
	test.That(t, loaded.FileNames(), test.ShouldResemble, map[int64]string{1: "street.png"})
}

func TestPatchMasksFractionalEdges(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			src.Set(x, y, color.RGBA{10, 20, 30, 255})
		}
	}

	patch, err := Patch(src, bbox.Box{XMin: 2, YMin: 2, XMax: 10.5, YMax: 8})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, patch.Bounds(), test.ShouldResemble, image.Rect(0, 0, 8, 6))
	inside := patch.NRGBAAt(3, 3)
	test.That(t, inside, test.ShouldResemble, color.NRGBA{10, 20, 30, 255})

	_, err = Patch(src, bbox.Box{XMin: 30, YMin: 30, XMax: 40, YMax: 40})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestLabelDir(t *testing.T) {
	test.That(t, labelDir("traffic/light"), test.ShouldEqual, "traffic_light")
	test.That(t, labelDir(".."), test.ShouldEqual, "_")
	test.That(t, labelDir("dog"), test.ShouldEqual, "dog")
}
