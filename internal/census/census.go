// Package census counts labelled instances across an annotation corpus.
package census

import (
	"fmt"
	"sort"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/model-collapse/aug-balance/internal/annotation"
)

// NoDataError is returned when a corpus yields no labelled instance at all.
type NoDataError struct {
	Dir     string
	Files   int
	Skipped int
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("no labelled objects in %s (%d annotation files, %d unreadable)", e.Dir, e.Files, e.Skipped)
}

// Table maps a label to its instance count. It is filled by Count and only read afterwards.
type Table map[string]int

// Skip records an annotation that could not be counted.
type Skip struct {
	Path string
	Err  error
}

// Count tallies every object of every record.
func Count(records []*annotation.Record) Table {
	t := Table{}
	for _, rec := range records {
		for _, obj := range rec.Objects {
			t[obj.Label]++
		}
	}
	return t
}

// CountFiles parses the annotations at paths and tallies their objects. Files that fail to
// parse are logged and reported back, they never stop the count. dir only labels the error
// returned when nothing could be counted.
func CountFiles(logger *zap.SugaredLogger, dir string, paths []string) (Table, []Skip, error) {
	records := make([]*annotation.Record, 0, len(paths))
	var skipped []Skip
	for _, p := range paths {
		rec, err := annotation.ParseFile(p)
		if err != nil {
			logger.Warnw("skipping annotation", "path", p, "error", err)
			skipped = append(skipped, Skip{Path: p, Err: err})
			continue
		}
		records = append(records, rec)
	}

	t := Count(records)
	if len(t) == 0 {
		return nil, skipped, &NoDataError{Dir: dir, Files: len(paths), Skipped: len(skipped)}
	}
	return t, skipped, nil
}

// Max returns the most frequent label. Ties go to the lexically smallest label.
func (t Table) Max() (string, int) {
	best, bestCount := "", 0
	for _, label := range t.Labels() {
		if c := t[label]; c > bestCount {
			best, bestCount = label, c
		}
	}
	return best, bestCount
}

// Labels returns the labels in lexical order.
func (t Table) Labels() []string {
	labels := lo.Keys(t)
	sort.Strings(labels)
	return labels
}

// Total is the number of counted instances.
func (t Table) Total() int {
	return lo.Sum(lo.Values(t))
}
