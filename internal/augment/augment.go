// Package augment applies randomized, box-aware transforms to an image.
//
// An Augmenter is an ordered chain of steps. Every step rolls its own activation probability
// on each call, so the same chain produces a different variant per call while staying
// reproducible for a fixed *rand.Rand. Photometric steps leave boxes alone; geometric steps
// return boxes in the coordinate space of their output, and the Augmenter drops any box that
// no longer covers a positive area of the image.
package augment

import (
	"fmt"
	"math/rand"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/model-collapse/aug-balance/internal/bbox"
	"github.com/model-collapse/aug-balance/internal/config"
)

// TransformError reports a failed augmentation step.
type TransformError struct {
	Step string
	Err  error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("augmentation step %s failed: %v", e.Step, e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

// Transform is one augmentation. Apply must not modify img; it returns a new Mat owned by the
// caller together with the boxes expressed in that Mat's coordinates, one per input box. On
// error the returned Mat is the zero value.
type Transform interface {
	Name() string
	Apply(rng *rand.Rand, img gocv.Mat, boxes []bbox.Box) (gocv.Mat, []bbox.Box, error)
}

// Step pairs a transform with the probability that it fires on a call.
type Step struct {
	Transform Transform
	Prob      float64
}

// Augmenter runs its steps in order.
type Augmenter struct {
	Steps []Step
}

// New builds the default chain from the configured probabilities and ranges.
func New(params config.Augment) *Augmenter {
	return &Augmenter{Steps: []Step{
		{Transform: &BrightnessContrast{
			MaxBrightness: params.Contrast.MaxBrightnessDelta,
			MaxContrast:   params.Contrast.MaxContrastDelta,
		}, Prob: params.ContrastProb},
		{Transform: &ColorJitter{
			Brightness: params.Jitter.MaxBrightnessDelta,
			Contrast:   params.Jitter.MaxContrastDelta,
			Saturation: params.Jitter.MaxSaturationDelta,
			Hue:        params.Jitter.MaxHueShiftDelta,
		}, Prob: params.ColorJitterProb},
		{Transform: &GaussNoise{
			MinVariance: params.Noise.MinVariance,
			MaxVariance: params.Noise.MaxVariance,
		}, Prob: params.NoiseProb},
		{Transform: &Gamma{
			Min: params.Gamma.Min,
			Max: params.Gamma.Max,
		}, Prob: params.GammaProb},
		{Transform: &Blur{
			MinKernel: params.Blur.MinKernel,
			MaxKernel: params.Blur.MaxKernel,
		}, Prob: params.BlurProb},
		{Transform: &HueSaturationValue{
			HueShift:        params.HSV.HueShift,
			SaturationShift: params.HSV.SaturationShift,
			ValueShift:      params.HSV.ValueShift,
		}, Prob: params.HueSatProb},
		{Transform: &ChannelShuffle{}, Prob: params.ChannelShuffleProb},
		{Transform: &HorizontalFlip{}, Prob: params.FlipProb},
		{Transform: &Affine{
			MaxRotation: params.Affine.MaxRotation,
			MaxShear:    params.Affine.MaxShear,
		}, Prob: params.AffineProb},
		{Transform: &RandomCrop{
			MaxHeightReduce: params.Crop.MaxHeightReduce,
			MaxWidthReduce:  params.Crop.MaxWidthReduce,
		}, Prob: params.CropProb},
	}}
}

// Augment produces one variant of img. img is not modified; the returned Mat belongs to the
// caller. labels[i] describes boxes[i]; pairs whose box leaves the image are dropped.
func (a *Augmenter) Augment(rng *rand.Rand, img gocv.Mat, boxes []bbox.Box, labels []string) (gocv.Mat, []bbox.Box, []string, error) {
	if img.Empty() {
		return gocv.Mat{}, nil, nil, &TransformError{Step: "input", Err: errors.New("empty image")}
	}

	if len(boxes) != len(labels) {
		return gocv.Mat{}, nil, nil, &TransformError{
			Step: "input",
			Err:  errors.Errorf("got %d boxes for %d labels", len(boxes), len(labels)),
		}
	}

	cur := img.Clone()
	boxes, labels = bbox.Sanitize(boxes, labels, cur.Cols(), cur.Rows())

	for _, step := range a.Steps {
		// always draw, so the random stream does not depend on which steps fire
		roll := rng.Float64()
		if roll >= step.Prob {
			continue
		}

		out, moved, err := step.Transform.Apply(rng, cur, boxes)
		if err != nil {
			cur.Close()
			return gocv.Mat{}, nil, nil, &TransformError{Step: step.Transform.Name(), Err: err}
		}
		cur.Close()
		if len(moved) != len(boxes) {
			out.Close()
			return gocv.Mat{}, nil, nil, &TransformError{
				Step: step.Transform.Name(),
				Err:  errors.Errorf("returned %d boxes for %d", len(moved), len(boxes)),
			}
		}
		cur = out
		boxes, labels = bbox.Sanitize(moved, labels, cur.Cols(), cur.Rows())
	}
	return cur, boxes, labels, nil
}
