// Package extract cuts every annotated object out of a split into its own RGBA PNG, so the
// per-class balance of a produced set can be eyeballed label by label.
package extract

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/llgcode/draw2d/draw2dimg"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/model-collapse/aug-balance/internal/annotation"
	"github.com/model-collapse/aug-balance/internal/bbox"
	"github.com/model-collapse/aug-balance/internal/dataset"
)

// Extractor writes object cutouts with a pool of workers.
type Extractor struct {
	Workers    int
	Extensions []string

	logger *zap.SugaredLogger
}

// New returns an extractor using workers goroutines.
func New(logger *zap.SugaredLogger, workers int, exts []string) *Extractor {
	if workers < 1 {
		workers = 1
	}
	return &Extractor{Workers: workers, Extensions: exts, logger: logger}
}

type job struct {
	sample  dataset.Sample
	rec     *annotation.Record
	imageID int64
	firstID int64
}

// Run extracts the objects of every annotated image of inDir into outDir/<label>/ and writes
// the manifest. Images that cannot be read are logged and left out; their errors are
// combined in the returned error next to the manifest.
func (e *Extractor) Run(ctx context.Context, inDir, outDir string) (*Manifest, error) {
	samples, err := dataset.Samples(inDir, e.Extensions)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating %s", outDir)
	}

	m := &Manifest{}
	var (
		jobs   []job
		nextID int64
		errs   error
	)
	for i, s := range samples {
		rec, err := dataset.ReadAnnotation(s)
		if err != nil {
			e.logger.Warnw("skipping image", "image", s.ImagePath, "error", err)
			errs = multierr.Append(errs, err)
			continue
		}
		jobs = append(jobs, job{sample: s, rec: rec, imageID: int64(i), firstID: nextID})
		nextID += int64(len(rec.Objects))
	}
	e.logger.Infow("extracting objects", "input", inDir, "images", len(jobs), "objects", nextID)

	ch := make(chan job, len(jobs))
	for _, j := range jobs {
		ch <- j
	}
	close(ch)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	wg.Add(e.Workers)
	for w := 0; w < e.Workers; w++ {
		go func() {
			defer wg.Done()
			for j := range ch {
				if ctx.Err() != nil {
					continue
				}
				cutouts, err := e.extractImage(j, outDir)
				mu.Lock()
				if err != nil {
					e.logger.Warnw("extraction failed", "image", j.sample.ImagePath, "error", err)
					errs = multierr.Append(errs, err)
				} else {
					m.Images = append(m.Images, ImageInfo{ID: j.imageID, FileName: j.sample.Name})
					m.Cutouts = append(m.Cutouts, cutouts...)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.finish()
	if err := m.Save(filepath.Join(outDir, ManifestName)); err != nil {
		return nil, err
	}
	return m, errs
}

func (e *Extractor) extractImage(j job, outDir string) (cutouts []*Cutout, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Errorw("panic while extracting", "image", j.sample.ImagePath, "panic", r, "stack", string(debug.Stack()))
			err = errors.Errorf("panic extracting %s: %v", j.sample.ImagePath, r)
		}
	}()

	mat, err := dataset.ReadImage(j.sample.ImagePath)
	if err != nil {
		return nil, err
	}
	defer mat.Close()
	img, err := mat.ToImage()
	if err != nil {
		return nil, &dataset.ImageReadError{Path: j.sample.ImagePath, Err: err}
	}

	for k, obj := range j.rec.Objects {
		patch, err := Patch(img, obj.Box)
		if err != nil {
			e.logger.Debugw("skipping object", "image", j.sample.Name, "label", obj.Label, "error", err)
			continue
		}
		rel := filepath.Join(labelDir(obj.Label), fmt.Sprintf("%s_%d.png", j.sample.Stem, k))
		if err := writePNG(filepath.Join(outDir, rel), patch); err != nil {
			return nil, err
		}
		cutouts = append(cutouts, &Cutout{
			ID:      j.firstID + int64(k),
			ImageID: j.imageID,
			Label:   obj.Label,
			Box:     [4]float64{obj.Box.XMin, obj.Box.YMin, obj.Box.XMax, obj.Box.YMax},
			Path:    filepath.ToSlash(rel),
		})
	}
	return cutouts, nil
}

// Patch copies the region of b out of img. Pixels outside the box outline are transparent.
func Patch(img image.Image, b bbox.Box) (*image.NRGBA, error) {
	bounds := img.Bounds()
	b = b.Clip(bounds.Dx(), bounds.Dy())
	if !b.Valid() {
		return nil, errors.Errorf("box %v outside image %v", b, bounds)
	}
	bnd := b.Rect().Add(bounds.Min)
	if bnd.Empty() {
		return nil, errors.Errorf("box %v is thinner than a pixel", b)
	}

	size := image.Rect(0, 0, bnd.Dx(), bnd.Dy())
	patch := image.NewNRGBA(size)
	for y := 0; y < size.Max.Y; y++ {
		for x := 0; x < size.Max.X; x++ {
			patch.Set(x, y, img.At(x+bnd.Min.X, y+bnd.Min.Y))
		}
	}

	mask := image.NewRGBA(size)
	gc := draw2dimg.NewGraphicContext(mask)
	gc.SetFillColor(color.RGBA{0, 0, 0, 255})
	ox, oy := float64(bnd.Min.X-bounds.Min.X), float64(bnd.Min.Y-bounds.Min.Y)
	gc.MoveTo(b.XMin-ox, b.YMin-oy)
	gc.LineTo(b.XMax-ox, b.YMin-oy)
	gc.LineTo(b.XMax-ox, b.YMax-oy)
	gc.LineTo(b.XMin-ox, b.YMax-oy)
	gc.Close()
	gc.Fill()

	for y := 0; y < size.Max.Y; y++ {
		for x := 0; x < size.Max.X; x++ {
			c := patch.NRGBAAt(x, y)
			c.A = mask.RGBAAt(x, y).A
			patch.SetNRGBA(x, y, c)
		}
	}
	return patch, nil
}

func labelDir(label string) string {
	label = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, label)
	if label == "" || label == "." || label == ".." {
		return "_"
	}
	return label
}

func writePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &dataset.WriteError{Path: path, Err: err}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return &dataset.WriteError{Path: path, Err: err}
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return &dataset.WriteError{Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &dataset.WriteError{Path: path, Err: err}
	}
	return nil
}
