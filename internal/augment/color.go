package augment

import (
	"image"
	"math"
	"math/rand"

	"gocv.io/x/gocv"

	"github.com/model-collapse/aug-balance/internal/bbox"
)

// BrightnessContrast scales every channel by 1±MaxContrast and shifts it by
// ±MaxBrightness of the full range.
type BrightnessContrast struct {
	MaxBrightness float64
	MaxContrast   float64
}

func (t *BrightnessContrast) Name() string { return "brightness_contrast" }

func (t *BrightnessContrast) Apply(rng *rand.Rand, img gocv.Mat, boxes []bbox.Box) (gocv.Mat, []bbox.Box, error) {
	alpha := 1 + uniform(rng, -t.MaxContrast, t.MaxContrast)
	beta := 255 * uniform(rng, -t.MaxBrightness, t.MaxBrightness)
	out, err := mapLUT(img, func(v float64) float64 { return v*alpha + beta })
	return out, boxes, err
}

// ColorJitter applies brightness, contrast, saturation and hue jitter in a random order.
// Each factor is drawn from [1-x, 1+x]; Hue is a fraction of the hue circle.
type ColorJitter struct {
	Brightness float64
	Contrast   float64
	Saturation float64
	Hue        float64
}

func (t *ColorJitter) Name() string { return "color_jitter" }

func (t *ColorJitter) Apply(rng *rand.Rand, img gocv.Mat, boxes []bbox.Box) (gocv.Mat, []bbox.Box, error) {
	brightness := uniform(rng, 1-t.Brightness, 1+t.Brightness)
	contrast := uniform(rng, 1-t.Contrast, 1+t.Contrast)
	saturation := uniform(rng, 1-t.Saturation, 1+t.Saturation)
	hue := uniform(rng, -t.Hue, t.Hue)
	order := rng.Perm(4)

	cur, pix, err := clone3(img)
	if err != nil {
		return cur, nil, err
	}
	for _, op := range order {
		switch op {
		case 0:
			newLUT(func(v float64) float64 { return v * brightness }).apply(pix)
		case 1:
			mean := meanLuma(pix)
			newLUT(func(v float64) float64 { return mean + contrast*(v-mean) }).apply(pix)
		case 2:
			desaturate(pix, saturation)
		case 3:
			shift := int(math.Round(hue * 180))
			if shift == 0 {
				continue
			}
			next, err := shiftHSV(cur, shift, 0, 0)
			cur.Close()
			if err != nil {
				return gocv.Mat{}, nil, err
			}
			cur = next
			if pix, err = pixels3(&cur); err != nil {
				cur.Close()
				return gocv.Mat{}, nil, err
			}
		}
	}
	return cur, boxes, nil
}

func meanLuma(pix []uint8) float64 {
	n := len(pix) / 3
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i+2 < len(pix); i += 3 {
		sum += luma(pix[i], pix[i+1], pix[i+2])
	}
	return sum / float64(n)
}

// desaturate blends every pixel with its own gray level; factor 1 is the identity.
func desaturate(pix []uint8, factor float64) {
	for i := 0; i+2 < len(pix); i += 3 {
		gray := luma(pix[i], pix[i+1], pix[i+2])
		for c := 0; c < 3; c++ {
			pix[i+c] = clampByte(gray + factor*(float64(pix[i+c])-gray))
		}
	}
}

// GaussNoise adds zero mean gaussian noise whose variance is drawn from
// [MinVariance, MaxVariance], independently per channel.
type GaussNoise struct {
	MinVariance float64
	MaxVariance float64
}

func (t *GaussNoise) Name() string { return "gauss_noise" }

func (t *GaussNoise) Apply(rng *rand.Rand, img gocv.Mat, boxes []bbox.Box) (gocv.Mat, []bbox.Box, error) {
	sigma := math.Sqrt(uniform(rng, t.MinVariance, t.MaxVariance))
	out, pix, err := clone3(img)
	if err != nil {
		return out, nil, err
	}
	for i, v := range pix {
		pix[i] = clampByte(float64(v) + rng.NormFloat64()*sigma)
	}
	return out, boxes, nil
}

// Gamma applies a power curve with the exponent drawn from [Min, Max] percent.
type Gamma struct {
	Min float64
	Max float64
}

func (t *Gamma) Name() string { return "gamma" }

func (t *Gamma) Apply(rng *rand.Rand, img gocv.Mat, boxes []bbox.Box) (gocv.Mat, []bbox.Box, error) {
	gamma := uniform(rng, t.Min, t.Max) / 100
	out, err := mapLUT(img, func(v float64) float64 { return 255 * math.Pow(v/255, gamma) })
	return out, boxes, err
}

// Blur is a box blur with an odd kernel size drawn from [MinKernel, MaxKernel].
type Blur struct {
	MinKernel int
	MaxKernel int
}

func (t *Blur) Name() string { return "blur" }

func (t *Blur) Apply(rng *rand.Rand, img gocv.Mat, boxes []bbox.Box) (gocv.Mat, []bbox.Box, error) {
	var sizes []int
	for k := t.MinKernel; k <= t.MaxKernel; k++ {
		if k%2 == 1 {
			sizes = append(sizes, k)
		}
	}
	k := t.MinKernel
	if len(sizes) > 0 {
		k = sizes[rng.Intn(len(sizes))]
	}
	if k < 1 {
		k = 1
	}
	out := gocv.NewMat()
	gocv.Blur(img, &out, image.Pt(k, k))
	return out, boxes, nil
}

// HueSaturationValue shifts hue, saturation and value by integers drawn from ±the configured
// limits, in OpenCV's 8 bit HSV space (hue in [0,180)).
type HueSaturationValue struct {
	HueShift        int
	SaturationShift int
	ValueShift      int
}

func (t *HueSaturationValue) Name() string { return "hue_saturation_value" }

func (t *HueSaturationValue) Apply(rng *rand.Rand, img gocv.Mat, boxes []bbox.Box) (gocv.Mat, []bbox.Box, error) {
	h := uniformInt(rng, -t.HueShift, t.HueShift)
	s := uniformInt(rng, -t.SaturationShift, t.SaturationShift)
	v := uniformInt(rng, -t.ValueShift, t.ValueShift)
	out, err := shiftHSV(img, h, s, v)
	return out, boxes, err
}

func shiftHSV(img gocv.Mat, h, s, v int) (gocv.Mat, error) {
	if _, err := pixels3(&img); err != nil {
		return gocv.Mat{}, err
	}
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(img, &hsv, gocv.ColorBGRToHSV)

	pix, err := pixels3(&hsv)
	if err != nil {
		return gocv.Mat{}, err
	}
	for i := 0; i+2 < len(pix); i += 3 {
		pix[i] = uint8(((int(pix[i])+h)%180 + 180) % 180)
		pix[i+1] = clampByte(float64(int(pix[i+1]) + s))
		pix[i+2] = clampByte(float64(int(pix[i+2]) + v))
	}

	out := gocv.NewMat()
	gocv.CvtColor(hsv, &out, gocv.ColorHSVToBGR)
	return out, nil
}

// ChannelShuffle permutes the colour channels.
type ChannelShuffle struct{}

func (t *ChannelShuffle) Name() string { return "channel_shuffle" }

func (t *ChannelShuffle) Apply(rng *rand.Rand, img gocv.Mat, boxes []bbox.Box) (gocv.Mat, []bbox.Box, error) {
	perm := rng.Perm(img.Channels())
	channels := gocv.Split(img)
	defer func() {
		for i := range channels {
			channels[i].Close()
		}
	}()

	shuffled := make([]gocv.Mat, len(perm))
	for i, p := range perm {
		shuffled[i] = channels[p]
	}
	out := gocv.NewMat()
	gocv.Merge(shuffled, &out)
	return out, boxes, nil
}
