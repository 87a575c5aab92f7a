package main

import (
	"encoding/json"
	"math/rand"
	"net"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	http "github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/model-collapse/aug-balance/internal/balancer"
	"github.com/model-collapse/aug-balance/internal/census"
	"github.com/model-collapse/aug-balance/internal/config"
	"github.com/model-collapse/aug-balance/internal/dataset"
	"github.com/model-collapse/aug-balance/internal/render"
)

// ServeAction serves previews of the augmentation chain for the splits under --input.
func ServeAction(c *cli.Context) error {
	logger, err := newLogger(c)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	conf, err := loadConfig(c)
	if err != nil {
		return err
	}
	s, err := newServer(conf, logger)
	if err != nil {
		return err
	}

	addr := c.String(flagAddr)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", addr)
	}

	// the listener is closed here too, so a cancel that lands before Serve still stops it
	srv := &http.Server{Handler: s.handle, Name: "augbalance"}
	go func() {
		<-c.Context.Done()
		if err := srv.Shutdown(); err != nil {
			logger.Warnw("shutdown", "error", err)
		}
		ln.Close() //nolint:errcheck
	}()

	logger.Infow("serving", "addr", ln.Addr().String(), "input", conf.InputDir)
	return srv.Serve(ln)
}

type server struct {
	conf   *config.Config
	b      *balancer.Balancer
	logger *zap.SugaredLogger
}

func newServer(conf *config.Config, logger *zap.SugaredLogger) (*server, error) {
	b, err := balancer.New(conf, logger)
	if err != nil {
		return nil, err
	}
	return &server{conf: conf, b: b, logger: logger}, nil
}

func (s *server) handle(c *http.RequestCtx) {
	switch string(c.Path()) {
	case "/preview":
		s.preview(c)
	case "/counts":
		s.counts(c)
	default:
		c.Error("not found", http.StatusNotFound)
	}
}

// splitDir resolves the split query argument, refusing anything that is not a plain
// directory name.
func (s *server) splitDir(c *http.RequestCtx) (string, bool) {
	split := string(c.QueryArgs().Peek("split"))
	if !plainName(split) {
		c.Error("bad split", http.StatusBadRequest)
		return "", false
	}
	return filepath.Join(s.conf.InputDir, split), true
}

func plainName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// preview renders one augmented variant. Without an image argument a random image of the
// split is used; without a seed a random one is drawn.
func (s *server) preview(c *http.RequestCtx) {
	dir, ok := s.splitDir(c)
	if !ok {
		return
	}
	args := c.QueryArgs()

	samples, err := dataset.Samples(dir, s.conf.Extensions)
	if err != nil || len(samples) == 0 {
		c.Error("no images in split", http.StatusNotFound)
		return
	}
	sample := samples[rand.Intn(len(samples))]
	if name := string(args.Peek("image")); name != "" {
		found := false
		for _, candidate := range samples {
			if candidate.Name == name {
				sample, found = candidate, true
				break
			}
		}
		if !found {
			c.Error("no such image", http.StatusNotFound)
			return
		}
	}

	seed := rand.Int63()
	if args.Has("seed") {
		v, err := args.GetUint("seed")
		if err != nil {
			c.Error("bad seed", http.StatusBadRequest)
			return
		}
		seed = int64(v)
	}

	v, err := s.b.Preview(sample, seed, string(args.Peek("aug")) != "false")
	if err != nil {
		s.logger.Warnw("preview failed", "image", sample.ImagePath, "error", err)
		c.Error(err.Error(), http.StatusUnprocessableEntity)
		return
	}
	defer v.Close()

	if string(args.Peek("box")) == "true" {
		render.DrawBoxes(&v.Image, v.Boxes, v.Labels)
	}
	data, err := render.EncodeJPEG(v.Image)
	if err != nil {
		s.logger.Errorw("encode", "error", err)
		c.Error(err.Error(), http.StatusInternalServerError)
		return
	}
	c.Response.Header.Set("X-Image", sample.Name)
	c.SetContentType("image/jpeg")
	c.SetBody(data)
}

type countsResponse struct {
	Split   string         `json:"split"`
	Counts  census.Table   `json:"counts"`
	Plans   map[string]int `json:"plans"`
	Skipped int            `json:"skipped"`
}

func (s *server) counts(c *http.RequestCtx) {
	dir, ok := s.splitDir(c)
	if !ok {
		return
	}
	plan, err := s.b.PlanSplit(dir)
	if err != nil {
		var noData *census.NoDataError
		status := http.StatusInternalServerError
		if errors.As(err, &noData) {
			status = http.StatusNotFound
		}
		c.Error(err.Error(), status)
		return
	}
	data, err := json.Marshal(countsResponse{
		Split:   plan.Split,
		Counts:  plan.Counts,
		Plans:   plan.Plans,
		Skipped: len(plan.Skipped),
	})
	if err != nil {
		c.Error(err.Error(), http.StatusInternalServerError)
		return
	}
	c.SetContentType("application/json")
	c.SetBody(data)
}
