package census

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"go.uber.org/zap/zaptest"
	"go.viam.com/test"
)

func writeAnnotation(t *testing.T, dir, name string, labels ...string) string {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("<annotation><filename>" + name + ".jpg</filename>")
	for i, l := range labels {
		fmt.Fprintf(&sb, "<object><name>%s</name><bndbox><xmin>%d</xmin><ymin>1</ymin><xmax>%d</xmax><ymax>9</ymax></bndbox></object>",
			l, i, i+5)
	}
	sb.WriteString("</annotation>")
	path := filepath.Join(dir, name+".xml")
	test.That(t, os.WriteFile(path, []byte(sb.String()), 0o644), test.ShouldBeNil)
	return path
}

func TestCountFiles(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	dir := t.TempDir()

	paths := []string{
		writeAnnotation(t, dir, "a", "cat", "dog", "cat"),
		writeAnnotation(t, dir, "b", "dog"),
		writeAnnotation(t, dir, "empty"),
	}
	broken := filepath.Join(dir, "broken.xml")
	test.That(t, os.WriteFile(broken, []byte("<annotation><object>"), 0o644), test.ShouldBeNil)
	paths = append(paths, broken)

	table, skipped, err := CountFiles(logger, dir, paths)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, table, test.ShouldResemble, Table{"cat": 2, "dog": 2})
	test.That(t, skipped, test.ShouldHaveLength, 1)
	test.That(t, skipped[0].Path, test.ShouldEqual, broken)

	label, count := table.Max()
	test.That(t, label, test.ShouldEqual, "cat")
	test.That(t, count, test.ShouldEqual, 2)
	test.That(t, table.Labels(), test.ShouldResemble, []string{"cat", "dog"})
	test.That(t, table.Total(), test.ShouldEqual, 4)
}

func TestCountFilesNoData(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	dir := t.TempDir()

	_, _, err := CountFiles(logger, dir, nil)
	var nodata *NoDataError
	test.That(t, errors.As(err, &nodata), test.ShouldBeTrue)

	paths := []string{writeAnnotation(t, dir, "empty")}
	_, _, err = CountFiles(logger, dir, paths)
	test.That(t, errors.As(err, &nodata), test.ShouldBeTrue)
	test.That(t, nodata.Files, test.ShouldEqual, 1)
	test.That(t, err.Error(), test.ShouldContainSubstring, dir)
}

func TestCountEmptyRecords(t *testing.T) {
	test.That(t, Count(nil), test.ShouldBeEmpty)
	label, count := Table{}.Max()
	test.That(t, label, test.ShouldEqual, "")
	test.That(t, count, test.ShouldEqual, 0)
}
