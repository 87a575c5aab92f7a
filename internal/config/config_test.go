package config

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func TestDefault(t *testing.T) {
	conf := Default()
	test.That(t, conf.Validate(), test.ShouldBeNil)
	test.That(t, conf.Dims(), test.ShouldResemble, image.Pt(640, 640))
	test.That(t, conf.Augment.FlipProb, test.ShouldEqual, 0.0)
	test.That(t, conf.Augment.NoiseProb, test.ShouldEqual, 0.5)
	test.That(t, conf.Extensions, test.ShouldContain, ".tiff")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf.json")
	content := `{
		"width": 320,
		"splits": ["train"],
		"extensions": ["JPG", ".png"],
		"augment": {"noise_prob": 0, "flip_prob": 1, "blur_param": {"min_kernel": 3, "max_kernel": 3}}
	}`
	test.That(t, os.WriteFile(path, []byte(content), 0o644), test.ShouldBeNil)

	conf, err := Load(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.Validate(), test.ShouldBeNil)
	test.That(t, conf.Width, test.ShouldEqual, 320)
	test.That(t, conf.Height, test.ShouldEqual, DefaultHeight)
	test.That(t, conf.Splits, test.ShouldResemble, []string{"train"})
	test.That(t, conf.Extensions, test.ShouldResemble, []string{".jpg", ".png"})
	test.That(t, conf.Augment.NoiseProb, test.ShouldEqual, 0.0)
	test.That(t, conf.Augment.FlipProb, test.ShouldEqual, 1.0)
	test.That(t, conf.Augment.ContrastProb, test.ShouldEqual, 0.5)
	test.That(t, conf.Augment.Blur.MaxKernel, test.ShouldEqual, 3)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)

	path := filepath.Join(t.TempDir(), "bad.json")
	test.That(t, os.WriteFile(path, []byte("{"), 0o644), test.ShouldBeNil)
	_, err = Load(path)
	test.That(t, err.Error(), test.ShouldContainSubstring, "decoding config")
}

func TestValidate(t *testing.T) {
	conf := Default()
	conf.Augment.BlurProb = 1.5
	test.That(t, conf.Validate().Error(), test.ShouldContainSubstring, "blur_prob")

	conf = Default()
	conf.Width = 0
	test.That(t, conf.Validate(), test.ShouldNotBeNil)

	conf = Default()
	conf.Workers = 0
	test.That(t, conf.Validate(), test.ShouldNotBeNil)

	conf = Default()
	conf.Augment.Crop.MaxWidthReduce = 1
	test.That(t, conf.Validate(), test.ShouldNotBeNil)

	conf = Default()
	conf.Extensions = nil
	test.That(t, conf.Validate(), test.ShouldNotBeNil)
}

func TestValidateReportsFirstBadProbability(t *testing.T) {
	params := DefaultAugment()
	params.AffineProb = -1
	params.CropProb = 3
	params.NoiseProb = 1.5
	params.ContrastProb = 2

	for i := 0; i < 20; i++ {
		err := params.Validate()
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldEqual, "contrast_prob must be within [0,1], got 2")
	}

	params.ContrastProb = 0
	test.That(t, params.Validate().Error(), test.ShouldStartWith, "noise_prob")
}

func TestValidateAffine(t *testing.T) {
	params := DefaultAugment()
	test.That(t, params.AffineProb, test.ShouldEqual, 0.0)
	test.That(t, params.Validate(), test.ShouldBeNil)

	params.AffineProb = 1.2
	test.That(t, params.Validate().Error(), test.ShouldContainSubstring, "affine_prob")

	params = DefaultAugment()
	params.Affine.MaxShear = -0.1
	test.That(t, params.Validate(), test.ShouldNotBeNil)

	params = DefaultAugment()
	params.Affine.MaxRotation = 270
	test.That(t, params.Validate(), test.ShouldNotBeNil)
}
