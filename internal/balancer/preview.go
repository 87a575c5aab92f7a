package balancer

import (
	"math/rand"
	"path/filepath"

	"gocv.io/x/gocv"

	"github.com/model-collapse/aug-balance/internal/bbox"
	"github.com/model-collapse/aug-balance/internal/census"
	"github.com/model-collapse/aug-balance/internal/dataset"
	"github.com/model-collapse/aug-balance/internal/planner"
	"github.com/model-collapse/aug-balance/internal/resize"
)

// SplitPlan is the frequency table of a split together with the copies every label asks for.
type SplitPlan struct {
	Split   string
	Counts  census.Table
	Plans   map[string]int
	Skipped []census.Skip
}

// PlanSplit counts the labels of dir and plans the copies of each label, without touching
// any image.
func (b *Balancer) PlanSplit(dir string) (*SplitPlan, error) {
	paths, err := dataset.Annotations(dir)
	if err != nil {
		return nil, err
	}
	table, skipped, err := census.CountFiles(b.logger, dir, paths)
	if err != nil {
		return nil, err
	}
	_, maxCount := table.Max()
	plans := make(map[string]int, len(table))
	for label, count := range table {
		n, err := planner.Plan(count, maxCount)
		if err != nil {
			return nil, err
		}
		plans[label] = n
	}
	return &SplitPlan{Split: filepath.Base(dir), Counts: table, Plans: plans, Skipped: skipped}, nil
}

// Variant is one rendered sample.
type Variant struct {
	Image  gocv.Mat
	Boxes  []bbox.Box
	Labels []string
}

// Close releases the image.
func (v *Variant) Close() error {
	return v.Image.Close()
}

// Preview renders a single augmented and resized variant of a sample with the given seed.
// With augmented false only the resize is applied. The caller closes the variant.
func (b *Balancer) Preview(s dataset.Sample, seed int64, augmented bool) (*Variant, error) {
	rec, err := dataset.ReadAnnotation(s)
	if err != nil {
		return nil, err
	}
	img, err := dataset.ReadImage(s.ImagePath)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	boxes, labels := bbox.Sanitize(rec.Boxes(), rec.Labels(), img.Cols(), img.Rows())
	src := img
	if augmented {
		out, augBoxes, augLabels, err := b.aug.Augment(rand.New(rand.NewSource(seed)), img, boxes, labels)
		if err != nil {
			return nil, err
		}
		defer out.Close()
		src, boxes, labels = out, augBoxes, augLabels
	}

	dims := b.conf.Dims()
	resized, resizedBoxes, err := resize.Resize(src, boxes, dims)
	if err != nil {
		return nil, err
	}
	resizedBoxes, labels = bbox.Sanitize(resizedBoxes, labels, dims.X, dims.Y)
	return &Variant{Image: resized, Boxes: resizedBoxes, Labels: labels}, nil
}
