// Command augbalance balances the classes of a Pascal VOC dataset by writing augmented copies
// of the images that carry rare labels.
package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/model-collapse/aug-balance/internal/config"
	"github.com/model-collapse/aug-balance/internal/logging"
)

const (
	flagInput   = "input"
	flagOutput  = "output"
	flagConfig  = "config"
	flagWidth   = "width"
	flagHeight  = "height"
	flagSeed    = "seed"
	flagWorkers = "workers"
	flagSplits  = "splits"
	flagDryRun  = "dry-run"
	flagDebug   = "debug"
	flagAddr    = "addr"

	envPrefix = "AUGBALANCE_"
)

func envVar(flag string) []string {
	return []string{envPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))}
}

// newApp builds the command tree. Flags are created per app since urfave/cli keeps parse
// state on them.
func newApp(out, errOut io.Writer) *cli.App {
	var (
		inputFlag = &cli.StringFlag{
			Name:     flagInput,
			Aliases:  []string{"i"},
			Usage:    "dataset root holding one directory per split",
			EnvVars:  envVar(flagInput),
			Required: true,
		}
		outputFlag = &cli.StringFlag{
			Name:    flagOutput,
			Aliases: []string{"o"},
			Usage:   "root the balanced splits are written to",
			EnvVars: envVar(flagOutput),
		}
		configFlag = &cli.StringFlag{
			Name:    flagConfig,
			Aliases: []string{"c"},
			Usage:   "load configuration from `FILE`",
			EnvVars: envVar(flagConfig),
		}
		splitsFlag = &cli.StringSliceFlag{
			Name:    flagSplits,
			Usage:   "splits to process, \"all\" for every subdirectory",
			EnvVars: envVar(flagSplits),
		}
		workersFlag = &cli.IntFlag{
			Name:    flagWorkers,
			Usage:   "number of images processed concurrently",
			EnvVars: envVar(flagWorkers),
		}
		debugFlag = &cli.BoolFlag{
			Name:    flagDebug,
			Usage:   "enable debug logging",
			EnvVars: envVar(flagDebug),
		}
	)

	return &cli.App{
		Name:            "augbalance",
		Usage:           "balance object detection datasets with augmented copies",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "balance every split of a dataset",
				Flags: []cli.Flag{
					inputFlag,
					outputFlag,
					configFlag,
					splitsFlag,
					workersFlag,
					debugFlag,
					&cli.IntFlag{Name: flagWidth, Usage: "output width", EnvVars: envVar(flagWidth)},
					&cli.IntFlag{Name: flagHeight, Usage: "output height", EnvVars: envVar(flagHeight)},
					&cli.Int64Flag{Name: flagSeed, Usage: "seed of the augmentation streams", EnvVars: envVar(flagSeed)},
					&cli.BoolFlag{Name: flagDryRun, Usage: "count and plan without writing", EnvVars: envVar(flagDryRun)},
				},
				Action: RunAction,
			},
			{
				Name:   "counts",
				Usage:  "print class frequencies and planned copies per split",
				Flags:  []cli.Flag{inputFlag, configFlag, splitsFlag, debugFlag},
				Action: CountsAction,
			},
			{
				Name:  "serve",
				Usage: "serve augmented previews over HTTP",
				Flags: []cli.Flag{
					inputFlag,
					configFlag,
					debugFlag,
					&cli.StringFlag{
						Name:    flagAddr,
						Usage:   "listen address",
						Value:   "0.0.0.0:8093",
						EnvVars: envVar(flagAddr),
					},
				},
				Action: ServeAction,
			},
			{
				Name:   "extract",
				Usage:  "cut every annotated object of a split into its own PNG",
				Flags:  []cli.Flag{inputFlag, outputFlag, configFlag, workersFlag, debugFlag},
				Action: ExtractAction,
			},
		},
	}
}

// loadConfig layers the config file and the flags set on the command line over the defaults.
func loadConfig(c *cli.Context) (*config.Config, error) {
	conf := config.Default()
	if path := c.String(flagConfig); path != "" {
		var err error
		if conf, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if c.IsSet(flagInput) {
		conf.InputDir = c.String(flagInput)
	}
	if c.IsSet(flagOutput) {
		conf.OutputDir = c.String(flagOutput)
	}
	if c.IsSet(flagSplits) {
		conf.Splits = c.StringSlice(flagSplits)
	}
	if c.IsSet(flagWidth) {
		conf.Width = c.Int(flagWidth)
	}
	if c.IsSet(flagHeight) {
		conf.Height = c.Int(flagHeight)
	}
	if c.IsSet(flagSeed) {
		conf.Seed = c.Int64(flagSeed)
	}
	if c.IsSet(flagWorkers) {
		conf.Workers = c.Int(flagWorkers)
	}
	if c.IsSet(flagDryRun) {
		conf.DryRun = c.Bool(flagDryRun)
	}
	return conf, nil
}

func newLogger(c *cli.Context) (*zap.SugaredLogger, error) {
	return logging.NewLogger("augbalance", c.Bool(flagDebug))
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "loading .env: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
