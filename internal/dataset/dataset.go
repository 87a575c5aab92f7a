// Package dataset walks split directories and writes balanced output.
package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/model-collapse/aug-balance/internal/annotation"
)

// AllSplits selects every subdirectory of the input root.
const AllSplits = "all"

// ImageReadError reports an image, or its annotation, that could not be loaded.
type ImageReadError struct {
	Path string
	Err  error
}

func (e *ImageReadError) Error() string {
	return fmt.Sprintf("cannot read %s: %v", e.Path, e.Err)
}

func (e *ImageReadError) Unwrap() error {
	return e.Err
}

// WriteError reports a failed write into the output tree.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("cannot write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Sample is one image of a split and the annotation expected next to it.
type Sample struct {
	Name           string
	Stem           string
	Ext            string
	ImagePath      string
	AnnotationPath string
}

// Splits resolves split names to directories under root. A single "all" entry selects every
// visible subdirectory.
func Splits(root string, names []string) ([]string, error) {
	if len(names) == 1 && names[0] == AllSplits {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, errors.Wrapf(err, "listing %s", root)
		}
		var dirs []string
		for _, e := range entries {
			if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
				dirs = append(dirs, filepath.Join(root, e.Name()))
			}
		}
		return dirs, nil
	}

	dirs := make([]string, 0, len(names))
	for _, name := range names {
		dirs = append(dirs, filepath.Join(root, name))
	}
	return dirs, nil
}

// Samples lists the images of dir whose extension is in exts, compared case-insensitively,
// sorted by file name.
func Samples(dir string, exts []string) ([]Sample, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", dir)
	}

	accepted := make(map[string]bool, len(exts))
	for _, ext := range exts {
		accepted[strings.ToLower(ext)] = true
	}

	var samples []Sample
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if !accepted[strings.ToLower(ext)] {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), ext)
		samples = append(samples, Sample{
			Name:           e.Name(),
			Stem:           stem,
			Ext:            ext,
			ImagePath:      filepath.Join(dir, e.Name()),
			AnnotationPath: filepath.Join(dir, stem+annotation.Ext),
		})
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Name < samples[j].Name })
	return samples, nil
}

// Annotations lists the annotation files of dir, sorted.
func Annotations(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", dir)
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), annotation.Ext) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadImage loads a colour image. The caller closes the Mat; on error it is the zero value.
func ReadImage(path string) (gocv.Mat, error) {
	if _, err := os.Stat(path); err != nil {
		return gocv.Mat{}, &ImageReadError{Path: path, Err: err}
	}
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		img.Close()
		return gocv.Mat{}, &ImageReadError{Path: path, Err: errors.New("unsupported or corrupt image")}
	}
	return img, nil
}

// ReadAnnotation parses the annotation of a sample, reporting a missing file as an
// ImageReadError.
func ReadAnnotation(s Sample) (*annotation.Record, error) {
	if _, err := os.Stat(s.AnnotationPath); err != nil {
		return nil, &ImageReadError{Path: s.AnnotationPath, Err: errors.Wrap(err, "missing annotation")}
	}
	return annotation.ParseFile(s.AnnotationPath)
}

// Sink writes images and annotations into one output directory.
type Sink struct {
	Dir string
}

// Prepare creates the output directory.
func (s Sink) Prepare() error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return &WriteError{Path: s.Dir, Err: err}
	}
	return nil
}

// WriteImage encodes img under name, the format following the extension. It returns the
// size of the written file.
func (s Sink) WriteImage(name string, img gocv.Mat) (int64, error) {
	path := filepath.Join(s.Dir, name)
	if !gocv.IMWrite(path, img) {
		return 0, &WriteError{Path: path, Err: errors.New("encoder failed")}
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, &WriteError{Path: path, Err: err}
	}
	return info.Size(), nil
}

// WriteAnnotation stores an encoded annotation under name.
func (s Sink) WriteAnnotation(name string, data []byte) (int64, error) {
	path := filepath.Join(s.Dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, &WriteError{Path: path, Err: err}
	}
	return int64(len(data)), nil
}
