// Package balancer drives the per-split balancing run: count labels, plan copies per image,
// then augment, resize and write every variant.
package balancer

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/model-collapse/aug-balance/internal/annotation"
	"github.com/model-collapse/aug-balance/internal/augment"
	"github.com/model-collapse/aug-balance/internal/bbox"
	"github.com/model-collapse/aug-balance/internal/census"
	"github.com/model-collapse/aug-balance/internal/config"
	"github.com/model-collapse/aug-balance/internal/dataset"
	"github.com/model-collapse/aug-balance/internal/planner"
	"github.com/model-collapse/aug-balance/internal/resize"
)

// State is the phase of a split.
type State int

const (
	Counting State = iota
	PlanningAndAugmenting
	Done
)

func (s State) String() string {
	switch s {
	case Counting:
		return "COUNTING"
	case PlanningAndAugmenting:
		return "PLANNING_AND_AUGMENTING"
	case Done:
		return "DONE"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Skip is a file left out of the output.
type Skip struct {
	Path string
	Kind string
	Err  error
}

// Result is the outcome of one image.
type Result struct {
	Sample    dataset.Sample
	Planned   int
	Augmented int
	Written   int
	Bytes     int64
	Err       error

	processed bool
}

// Summary aggregates a split.
type Summary struct {
	Split     string
	State     State
	Counts    census.Table
	Images    int
	Processed int
	Planned   int
	Augmented int
	Written   int
	Bytes     int64
	Skipped   []Skip
	Err       error
	Duration  time.Duration
}

// Balancer balances the splits of one dataset.
type Balancer struct {
	conf   *config.Config
	logger *zap.SugaredLogger
	aug    *augment.Augmenter

	// OnImage, when set, is called after each image of a split is finished. Calls are
	// serialized.
	OnImage func(split string, done, total int)
}

// New validates conf and builds a Balancer.
func New(conf *config.Config, logger *zap.SugaredLogger) (*Balancer, error) {
	if err := conf.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return &Balancer{
		conf:   conf,
		logger: logger,
		aug:    augment.New(conf.Augment),
	}, nil
}

// Run balances every configured split of the input root into the output root. A split that
// fails is reported in its summary and in the returned error, the other splits still run.
// Only an inconsistency between the frequency table and the planner aborts the run.
func (b *Balancer) Run(ctx context.Context) ([]Summary, error) {
	dirs, err := dataset.Splits(b.conf.InputDir, b.conf.Splits)
	if err != nil {
		return nil, err
	}

	var (
		summaries []Summary
		errs      error
	)
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}
		out := filepath.Join(b.conf.OutputDir, filepath.Base(dir))
		sum, err := b.BalanceSplit(ctx, dir, out)
		summaries = append(summaries, sum)
		if err != nil {
			return summaries, multierr.Append(errs, err)
		}
		if sum.Err != nil {
			b.logger.Errorw("split failed", "split", sum.Split, "error", sum.Err)
			errs = multierr.Append(errs, errors.Wrapf(sum.Err, "split %s", sum.Split))
		}
	}
	return summaries, errs
}

// BalanceSplit balances the images of dir into outDir. Split level failures land in
// Summary.Err; the returned error is only set for failures that must stop the run.
func (b *Balancer) BalanceSplit(ctx context.Context, dir, outDir string) (sum Summary, err error) {
	start := time.Now()
	sum = Summary{Split: filepath.Base(dir), State: Counting}
	defer func() { sum.Duration = time.Since(start) }()
	b.logger.Infow("balancing split", "split", sum.Split, "input", dir, "output", outDir)

	paths, err := dataset.Annotations(dir)
	if err != nil {
		sum.Err = err
		return sum, nil
	}
	table, skipped, err := census.CountFiles(b.logger, dir, paths)
	for _, s := range skipped {
		sum.Skipped = append(sum.Skipped, Skip{Path: s.Path, Kind: Kind(s.Err), Err: s.Err})
	}
	if err != nil {
		sum.Err = err
		return sum, nil
	}
	sum.Counts = table
	maxLabel, maxCount := table.Max()
	b.logger.Infow("class frequencies", "split", sum.Split, "labels", len(table),
		"instances", table.Total(), "max_label", maxLabel, "max_count", maxCount)

	sum.State = PlanningAndAugmenting
	samples, err := dataset.Samples(dir, b.conf.Extensions)
	if err != nil {
		sum.Err = err
		return sum, nil
	}
	sum.Images = len(samples)

	sink := dataset.Sink{Dir: outDir}
	if !b.conf.DryRun {
		if err := sink.Prepare(); err != nil {
			sum.Err = err
			return sum, nil
		}
	}

	results := b.processAll(ctx, sum.Split, samples, table, sink)
	for _, res := range results {
		if !res.processed {
			continue
		}
		sum.Processed++
		sum.Planned += res.Planned
		sum.Augmented += res.Augmented
		sum.Written += res.Written
		sum.Bytes += res.Bytes
		if res.Err == nil {
			continue
		}
		if IsFatal(res.Err) {
			return sum, errors.Wrapf(res.Err, "planning %s", res.Sample.ImagePath)
		}
		kind := Kind(res.Err)
		b.logger.Warnw("skipping image", "image", res.Sample.ImagePath, "kind", kind, "error", res.Err)
		sum.Skipped = append(sum.Skipped, Skip{Path: res.Sample.ImagePath, Kind: kind, Err: res.Err})
	}
	if err := ctx.Err(); err != nil {
		sum.Err = err
		return sum, nil
	}

	sum.State = Done
	b.logger.Infow("split done", "split", sum.Split, "images", sum.Images, "augmented", sum.Augmented,
		"written", sum.Written, "skipped", len(sum.Skipped))
	return sum, nil
}

// processAll feeds the samples to a fixed pool of workers. Results keep the sample order.
func (b *Balancer) processAll(
	ctx context.Context,
	split string,
	samples []dataset.Sample,
	table census.Table,
	sink dataset.Sink,
) []Result {
	results := make([]Result, len(samples))

	var (
		mu   sync.Mutex
		done int
	)
	finish := func() {
		mu.Lock()
		defer mu.Unlock()
		done++
		if b.OnImage != nil {
			b.OnImage(split, done, len(samples))
		}
	}

	// Two images sharing a stem would write the same annotation name.
	owner := map[string]string{}
	jobs := make(chan int, len(samples))
	for i, s := range samples {
		if first, dup := owner[s.Stem]; dup {
			results[i] = Result{
				Sample:    s,
				Err:       &dataset.WriteError{Path: s.Stem + annotation.Ext, Err: errors.Errorf("stem already used by %s", first)},
				processed: true,
			}
			finish()
			continue
		}
		owner[s.Stem] = s.Name
		jobs <- i
	}
	close(jobs)

	workers := b.conf.Workers
	if workers < 1 {
		workers = 1
	}
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					continue
				}
				results[i] = b.processImage(split, samples[i], table, sink)
				finish()
			}
		}()
	}
	wg.Wait()
	return results
}

// seedFor derives the random stream of one image from the run seed, so variants do not
// depend on processing order.
func (b *Balancer) seedFor(split, name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(split + "/" + name))
	return b.conf.Seed ^ int64(h.Sum64())
}

func (b *Balancer) processImage(split string, s dataset.Sample, table census.Table, sink dataset.Sink) Result {
	res := Result{Sample: s, processed: true}

	rec, err := dataset.ReadAnnotation(s)
	if err != nil {
		res.Err = err
		return res
	}
	plans, err := planner.PlanImage(table, rec.Labels())
	if err != nil {
		res.Err = err
		return res
	}
	res.Planned = planner.Total(plans)
	if b.conf.DryRun {
		return res
	}

	img, err := dataset.ReadImage(s.ImagePath)
	if err != nil {
		res.Err = err
		return res
	}
	defer img.Close()

	boxes, labels := bbox.Sanitize(rec.Boxes(), rec.Labels(), img.Cols(), img.Rows())
	rng := rand.New(rand.NewSource(b.seedFor(split, s.Name)))

	idx := 0
	for _, p := range plans {
		b.logger.Debugw("augmenting", "image", s.Name, "label", p.Label, "count", p.Count, "copies", p.Copies)
		for i := 0; i < p.Copies; i++ {
			stem := fmt.Sprintf("%s_aug%d", s.Stem, idx)
			idx++
			n, err := b.writeVariant(rng, sink, rec, img, boxes, labels, stem+s.Ext, stem+annotation.Ext)
			res.Bytes += n
			if err != nil {
				res.Err = err
				return res
			}
			res.Augmented++
			res.Written++
		}
	}

	n, err := b.writeResized(sink, rec, img, boxes, labels, s.Name, s.Stem+annotation.Ext)
	res.Bytes += n
	if err != nil {
		res.Err = err
		return res
	}
	res.Written++
	return res
}

func (b *Balancer) writeVariant(
	rng *rand.Rand,
	sink dataset.Sink,
	rec *annotation.Record,
	img gocv.Mat,
	boxes []bbox.Box,
	labels []string,
	imageName, annotationName string,
) (int64, error) {
	augmented, augBoxes, augLabels, err := b.aug.Augment(rng, img, boxes, labels)
	if err != nil {
		return 0, err
	}
	defer augmented.Close()
	return b.writeResized(sink, rec, augmented, augBoxes, augLabels, imageName, annotationName)
}

func (b *Balancer) writeResized(
	sink dataset.Sink,
	rec *annotation.Record,
	img gocv.Mat,
	boxes []bbox.Box,
	labels []string,
	imageName, annotationName string,
) (int64, error) {
	dims := b.conf.Dims()
	resized, resizedBoxes, err := resize.Resize(img, boxes, dims)
	if err != nil {
		return 0, &augment.TransformError{Step: "resize", Err: err}
	}
	defer resized.Close()
	resizedBoxes, labels = bbox.Sanitize(resizedBoxes, labels, dims.X, dims.Y)

	data, err := rec.SerializeWithSize(imageName, resizedBoxes, labels, dims)
	if err != nil {
		return 0, &dataset.WriteError{Path: filepath.Join(sink.Dir, annotationName), Err: err}
	}
	imgBytes, err := sink.WriteImage(imageName, resized)
	if err != nil {
		return imgBytes, err
	}
	annBytes, err := sink.WriteAnnotation(annotationName, data)
	return imgBytes + annBytes, err
}
