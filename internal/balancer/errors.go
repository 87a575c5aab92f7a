package balancer

import (
	"github.com/pkg/errors"

	"github.com/model-collapse/aug-balance/internal/annotation"
	"github.com/model-collapse/aug-balance/internal/augment"
	"github.com/model-collapse/aug-balance/internal/census"
	"github.com/model-collapse/aug-balance/internal/dataset"
	"github.com/model-collapse/aug-balance/internal/planner"
)

// Error kinds reported in summaries.
const (
	KindParse     = "parse"
	KindImageRead = "image_read"
	KindTransform = "transform"
	KindWrite     = "write"
	KindNoData    = "no_data"
	KindCount     = "invalid_count"
	KindOther     = "other"
)

// Kind classifies a processing error.
func Kind(err error) string {
	var (
		parseErr     *annotation.ParseError
		readErr      *dataset.ImageReadError
		transformErr *augment.TransformError
		writeErr     *dataset.WriteError
		noDataErr    *census.NoDataError
		countErr     *planner.InvalidCountError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &countErr):
		return KindCount
	case errors.As(err, &noDataErr):
		return KindNoData
	case errors.As(err, &parseErr):
		return KindParse
	case errors.As(err, &readErr):
		return KindImageRead
	case errors.As(err, &transformErr):
		return KindTransform
	case errors.As(err, &writeErr):
		return KindWrite
	default:
		return KindOther
	}
}

// IsFatal reports whether err must stop the whole run.
func IsFatal(err error) bool {
	var countErr *planner.InvalidCountError
	return errors.As(err, &countErr)
}
