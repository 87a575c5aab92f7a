// Package annotation reads and rewrites Pascal VOC style XML annotations.
package annotation

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/model-collapse/aug-balance/internal/bbox"
)

// Ext is the extension of annotation files.
const Ext = ".xml"

// ParseError reports a malformed annotation.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("malformed annotation: %v", e.Err)
	}
	return fmt.Sprintf("malformed annotation %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Object is one labelled instance.
type Object struct {
	Label string
	Box   bbox.Box
}

// Record is a parsed annotation document.
type Record struct {
	Path     string
	Filename string
	Objects  []Object

	doc *document
}

// ParseFile loads and parses the annotation at path.
func ParseFile(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	rec, err := ParseBytes(data)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			perr.Path = path
		}
		return nil, err
	}
	rec.Path = path
	return rec, nil
}

// Parse decodes a record from r.
func Parse(r io.Reader) (*Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	return ParseBytes(data)
}

// ParseBytes decodes a record held in memory.
func ParseBytes(data []byte) (*Record, error) {
	doc, err := decodeDocument(data)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	doc.root.normalize()

	rec := &Record{doc: doc}
	rec.Filename, _ = doc.root.Value("filename")

	for i, obj := range doc.root.ChildrenNamed("object") {
		o, err := parseObject(obj)
		if err != nil {
			return nil, &ParseError{Err: errors.Wrapf(err, "object %d", i)}
		}
		rec.Objects = append(rec.Objects, o)
	}
	return rec, nil
}

func parseObject(obj *Element) (Object, error) {
	name, ok := obj.Value("name")
	if !ok || name == "" {
		return Object{}, errors.New("missing name")
	}
	bnd := obj.Child("bndbox")
	if bnd == nil {
		return Object{}, errors.New("missing bndbox")
	}

	var coords [4]float64
	for i, key := range []string{"xmin", "ymin", "xmax", "ymax"} {
		raw, ok := bnd.Value(key)
		if !ok {
			return Object{}, errors.Errorf("missing bndbox/%s", key)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Object{}, errors.Wrapf(err, "bndbox/%s", key)
		}
		coords[i] = v
	}

	return Object{
		Label: name,
		Box:   bbox.Box{XMin: coords[0], YMin: coords[1], XMax: coords[2], YMax: coords[3]},
	}, nil
}

// Labels lists the object labels in document order, duplicates included.
func (r *Record) Labels() []string {
	out := make([]string, len(r.Objects))
	for i, o := range r.Objects {
		out[i] = o.Label
	}
	return out
}

// Boxes lists the object boxes in document order.
func (r *Record) Boxes() []bbox.Box {
	out := make([]bbox.Box, len(r.Objects))
	for i, o := range r.Objects {
		out[i] = o.Box
	}
	return out
}

// Size returns the dimensions stored in the optional size element.
func (r *Record) Size() (image.Point, bool) {
	size := r.doc.root.Child("size")
	if size == nil {
		return image.Point{}, false
	}
	ws, okW := size.Value("width")
	hs, okH := size.Value("height")
	if !okW || !okH {
		return image.Point{}, false
	}
	w, errW := strconv.Atoi(ws)
	h, errH := strconv.Atoi(hs)
	if errW != nil || errH != nil {
		return image.Point{}, false
	}
	return image.Pt(w, h), true
}

// Field returns the trimmed text of a top level element, e.g. "folder".
func (r *Record) Field(name string) (string, bool) {
	return r.doc.root.Value(name)
}

// Serialize renders a copy of the record with the filename replaced and the object list
// replaced by one object per (box, label) pair. The receiver is left untouched.
func (r *Record) Serialize(filename string, boxes []bbox.Box, labels []string) ([]byte, error) {
	return r.serialize(filename, boxes, labels, image.Point{})
}

// SerializeWithSize is Serialize that also rewrites the size element to dims.
func (r *Record) SerializeWithSize(filename string, boxes []bbox.Box, labels []string, dims image.Point) ([]byte, error) {
	if dims.X <= 0 || dims.Y <= 0 {
		return nil, errors.Errorf("invalid image size %v", dims)
	}
	return r.serialize(filename, boxes, labels, dims)
}

func (r *Record) serialize(filename string, boxes []bbox.Box, labels []string, dims image.Point) ([]byte, error) {
	if len(boxes) != len(labels) {
		return nil, errors.Errorf("got %d boxes for %d labels", len(boxes), len(labels))
	}

	root := r.doc.root.clone()
	root.setChild("filename", filename, "folder")
	if dims != (image.Point{}) {
		setSize(root, dims)
	}

	root.removeAll("object")
	for i, b := range boxes {
		root.Children = append(root.Children, objectElement(labels[i], b))
	}

	var buf bytes.Buffer
	out := &document{prolog: r.doc.prolog, root: root, epilog: r.doc.epilog}
	out.encode(&buf)
	return buf.Bytes(), nil
}

func setSize(root *Element, dims image.Point) {
	size := root.Child("size")
	if size == nil {
		size = root.setChild("size", "", "filename")
	}
	size.setChild("width", strconv.Itoa(dims.X), "")
	size.setChild("height", strconv.Itoa(dims.Y), "width")
	if size.Child("depth") == nil {
		size.setChild("depth", "3", "height")
	}
}

func objectElement(label string, b bbox.Box) *Element {
	r := b.Rect()
	if r.Max.X <= r.Min.X {
		r.Max.X = r.Min.X + 1
	}
	if r.Max.Y <= r.Min.Y {
		r.Max.Y = r.Min.Y + 1
	}
	return newElement("object", "",
		newElement("name", label),
		newElement("pose", "Unspecified"),
		newElement("truncated", "0"),
		newElement("difficult", "0"),
		newElement("bndbox", "",
			newElement("xmin", strconv.Itoa(r.Min.X)),
			newElement("ymin", strconv.Itoa(r.Min.Y)),
			newElement("xmax", strconv.Itoa(r.Max.X)),
			newElement("ymax", strconv.Itoa(r.Max.Y)),
		),
	)
}
