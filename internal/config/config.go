// Package config holds the settings of a balancing run.
package config

import (
	"encoding/json"
	"image"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Default values used when neither the config file nor a flag sets them.
const (
	DefaultWidth  = 640
	DefaultHeight = 640
	DefaultSeed   = 42
)

// DefaultExtensions are the image extensions picked up in a split directory.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png", ".tif", ".tiff"}

// DefaultSplits are the split directories balanced when none are configured.
var DefaultSplits = []string{"train", "val"}

// ColorParameter bounds the photometric transforms.
type ColorParameter struct {
	MaxBrightnessDelta float64 `json:"max_brightness_delta"`
	MaxContrastDelta   float64 `json:"max_contrast_delta"`
	MaxSaturationDelta float64 `json:"max_saturation_delta"`
	MaxHueShiftDelta   float64 `json:"max_hue_shift_delta"`
}

// NoiseParameter bounds the additive gaussian noise variance.
type NoiseParameter struct {
	MinVariance float64 `json:"min_variance"`
	MaxVariance float64 `json:"max_variance"`
}

// GammaParameter bounds the gamma, in percent.
type GammaParameter struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// BlurParameter bounds the blur kernel size.
type BlurParameter struct {
	MinKernel int `json:"min_kernel"`
	MaxKernel int `json:"max_kernel"`
}

// HSVParameter bounds the hue/saturation/value shifts, in OpenCV 8 bit HSV units.
type HSVParameter struct {
	HueShift        int `json:"hue_shift"`
	SaturationShift int `json:"sat_shift"`
	ValueShift      int `json:"val_shift"`
}

// CropParameter bounds how much of each side a random crop may remove.
type CropParameter struct {
	MaxHeightReduce float64 `json:"max_height_reduce"`
	MaxWidthReduce  float64 `json:"max_width_reduce"`
}

// AffineParameter bounds the random rotation, in degrees, and the horizontal shear factor.
type AffineParameter struct {
	MaxRotation float64 `json:"max_rotation"`
	MaxShear    float64 `json:"max_shear"`
}

// Augment holds the activation probability of every transform and their ranges.
type Augment struct {
	ContrastProb       float64 `json:"contrast_prob"`
	ColorJitterProb    float64 `json:"color_jitter_prob"`
	NoiseProb          float64 `json:"noise_prob"`
	GammaProb          float64 `json:"gamma_prob"`
	BlurProb           float64 `json:"blur_prob"`
	HueSatProb         float64 `json:"hue_sat_prob"`
	ChannelShuffleProb float64 `json:"channel_shuffle_prob"`
	FlipProb           float64 `json:"flip_prob"`
	CropProb           float64 `json:"crop_prob"`
	AffineProb         float64 `json:"affine_prob"`

	Contrast ColorParameter  `json:"contrast_param"`
	Jitter   ColorParameter  `json:"jitter_param"`
	Noise    NoiseParameter  `json:"noise_param"`
	Gamma    GammaParameter  `json:"gamma_param"`
	Blur     BlurParameter   `json:"blur_param"`
	HSV      HSVParameter    `json:"hsv_param"`
	Crop     CropParameter   `json:"crop_param"`
	Affine   AffineParameter `json:"affine_param"`
}

// Config is the full run configuration.
type Config struct {
	InputDir   string   `json:"input_dir"`
	OutputDir  string   `json:"output_dir"`
	Splits     []string `json:"splits"`
	Width      int      `json:"width"`
	Height     int      `json:"height"`
	Extensions []string `json:"extensions"`
	Seed       int64    `json:"seed"`
	Workers    int      `json:"workers"`
	DryRun     bool     `json:"dry_run"`
	Augment    Augment  `json:"augment"`
}

// DefaultAugment mirrors the photometric chain used to balance the original datasets: every
// colour transform fires half of the time, geometry is left alone.
func DefaultAugment() Augment {
	return Augment{
		ContrastProb:       0.5,
		ColorJitterProb:    0.5,
		NoiseProb:          0.5,
		GammaProb:          0.5,
		BlurProb:           0.5,
		HueSatProb:         0.5,
		ChannelShuffleProb: 0.5,

		Contrast: ColorParameter{MaxBrightnessDelta: 0.2, MaxContrastDelta: 0.2},
		Jitter: ColorParameter{
			MaxBrightnessDelta: 0.2,
			MaxContrastDelta:   0.2,
			MaxSaturationDelta: 0.2,
			MaxHueShiftDelta:   0.2,
		},
		Noise:  NoiseParameter{MinVariance: 10, MaxVariance: 50},
		Gamma:  GammaParameter{Min: 80, Max: 120},
		Blur:   BlurParameter{MinKernel: 3, MaxKernel: 7},
		HSV:    HSVParameter{HueShift: 20, SaturationShift: 30, ValueShift: 20},
		Crop:   CropParameter{MaxHeightReduce: 0.2, MaxWidthReduce: 0.2},
		Affine: AffineParameter{MaxRotation: 15, MaxShear: 0.1},
	}
}

// Default returns a configuration with every default filled in.
func Default() *Config {
	return &Config{
		Splits:     append([]string(nil), DefaultSplits...),
		Width:      DefaultWidth,
		Height:     DefaultHeight,
		Extensions: append([]string(nil), DefaultExtensions...),
		Seed:       DefaultSeed,
		Workers:    1,
		Augment:    DefaultAugment(),
	}
}

// Load reads a JSON configuration on top of the defaults. Keys absent from the file keep
// their default value.
func Load(path string) (*Config, error) {
	conf := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	if err := json.Unmarshal(data, conf); err != nil {
		return nil, errors.Wrapf(err, "decoding config %s", path)
	}
	conf.normalize()
	return conf, nil
}

// Dims is the target output size.
func (c *Config) Dims() image.Point {
	return image.Pt(c.Width, c.Height)
}

func (c *Config) normalize() {
	for i, ext := range c.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.Extensions[i] = ext
	}
}

// Validate checks the configuration before a run.
func (c *Config) Validate() error {
	c.normalize()
	if c.Width <= 0 || c.Height <= 0 {
		return errors.Errorf("target size must be positive, got %dx%d", c.Width, c.Height)
	}
	if len(c.Extensions) == 0 {
		return errors.New("no image extensions configured")
	}
	if len(c.Splits) == 0 {
		return errors.New("no splits configured")
	}
	if c.Workers < 1 {
		return errors.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	return c.Augment.Validate()
}

// Validate checks probabilities and ranges.
func (a Augment) Validate() error {
	probs := []struct {
		name string
		p    float64
	}{
		{"contrast_prob", a.ContrastProb},
		{"color_jitter_prob", a.ColorJitterProb},
		{"noise_prob", a.NoiseProb},
		{"gamma_prob", a.GammaProb},
		{"blur_prob", a.BlurProb},
		{"hue_sat_prob", a.HueSatProb},
		{"channel_shuffle_prob", a.ChannelShuffleProb},
		{"flip_prob", a.FlipProb},
		{"crop_prob", a.CropProb},
		{"affine_prob", a.AffineProb},
	}
	for _, prob := range probs {
		if prob.p < 0 || prob.p > 1 {
			return errors.Errorf("%s must be within [0,1], got %v", prob.name, prob.p)
		}
	}
	if a.Noise.MinVariance < 0 || a.Noise.MaxVariance < a.Noise.MinVariance {
		return errors.Errorf("invalid noise variance range [%v,%v]", a.Noise.MinVariance, a.Noise.MaxVariance)
	}
	if a.Gamma.Min <= 0 || a.Gamma.Max < a.Gamma.Min {
		return errors.Errorf("invalid gamma range [%v,%v]", a.Gamma.Min, a.Gamma.Max)
	}
	if a.Blur.MinKernel < 1 || a.Blur.MaxKernel < a.Blur.MinKernel {
		return errors.Errorf("invalid blur kernel range [%d,%d]", a.Blur.MinKernel, a.Blur.MaxKernel)
	}
	if a.Crop.MaxHeightReduce < 0 || a.Crop.MaxHeightReduce >= 1 ||
		a.Crop.MaxWidthReduce < 0 || a.Crop.MaxWidthReduce >= 1 {
		return errors.New("crop reductions must be within [0,1)")
	}
	if a.Affine.MaxRotation < 0 || a.Affine.MaxRotation > 180 || a.Affine.MaxShear < 0 {
		return errors.Errorf("invalid affine bounds rotation %v shear %v", a.Affine.MaxRotation, a.Affine.MaxShear)
	}
	return nil
}
