package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/model-collapse/aug-balance/internal/balancer"
	"github.com/model-collapse/aug-balance/internal/dataset"
	"github.com/model-collapse/aug-balance/internal/extract"
)

// RunAction balances the configured splits and prints the summary.
func RunAction(c *cli.Context) error {
	logger, err := newLogger(c)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	conf, err := loadConfig(c)
	if err != nil {
		return err
	}
	if conf.OutputDir == "" && !conf.DryRun {
		return errors.New("an output directory is required unless --dry-run is set")
	}
	b, err := balancer.New(conf, logger)
	if err != nil {
		return err
	}

	bars := map[string]*progressbar.ProgressBar{}
	b.OnImage = func(split string, done, total int) {
		bar, ok := bars[split]
		if !ok {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(c.App.ErrWriter),
				progressbar.OptionSetDescription(split),
				progressbar.OptionShowCount(),
				progressbar.OptionOnCompletion(func() { fmt.Fprintln(c.App.ErrWriter) }),
			)
			bars[split] = bar
		}
		_ = bar.Set(done)
	}

	sums, runErr := b.Run(c.Context)
	writeSummary(c.App.Writer, sums)
	fmt.Fprintln(c.App.Writer, "processing complete")
	if runErr != nil {
		logger.Errorw("run finished with errors", "errors", len(multierr.Errors(runErr)))
		return cli.Exit(runErr.Error(), 1)
	}
	return nil
}

// CountsAction prints the class table of every configured split without writing anything.
func CountsAction(c *cli.Context) error {
	logger, err := newLogger(c)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	conf, err := loadConfig(c)
	if err != nil {
		return err
	}
	b, err := balancer.New(conf, logger)
	if err != nil {
		return err
	}
	dirs, err := dataset.Splits(conf.InputDir, conf.Splits)
	if err != nil {
		return err
	}

	var errs error
	for _, dir := range dirs {
		plan, err := b.PlanSplit(dir)
		if err != nil {
			logger.Errorw("cannot count split", "split", dir, "error", err)
			errs = multierr.Append(errs, err)
			continue
		}
		writeCounts(c.App.Writer, plan.Split, plan.Counts)
		if len(plan.Skipped) > 0 {
			fmt.Fprintf(c.App.Writer, "%d unreadable annotation files\n", len(plan.Skipped))
		}
	}
	if errs != nil {
		return cli.Exit(errs.Error(), 1)
	}
	return nil
}

// ExtractAction writes the object cutouts of one split.
func ExtractAction(c *cli.Context) error {
	logger, err := newLogger(c)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	conf, err := loadConfig(c)
	if err != nil {
		return err
	}
	if conf.OutputDir == "" {
		return errors.New("an output directory is required")
	}

	m, err := extract.New(logger, conf.Workers, conf.Extensions).Run(c.Context, conf.InputDir, conf.OutputDir)
	if m == nil {
		return err
	}
	if err != nil {
		logger.Warnw("some images were left out", "errors", len(multierr.Errors(err)))
	}
	fmt.Fprintf(c.App.Writer, "%s cutouts from %s images written to %s\n",
		humanize.Comma(int64(len(m.Cutouts))), humanize.Comma(int64(len(m.Images))), conf.OutputDir)
	return nil
}
