package annotation

import (
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/model-collapse/aug-balance/internal/bbox"
)

const vocSample = `<annotation verified="yes">
	<folder>images</folder>
	<filename>cat_001.jpg</filename>
	<path>/data/images/cat_001.jpg</path>
	<source>
		<database>Unknown</database>
	</source>
	<size>
		<width>320</width>
		<height>240</height>
		<depth>3</depth>
	</size>
	<segmented>0</segmented>
	<object>
		<name>cat</name>
		<pose>Left</pose>
		<truncated>1</truncated>
		<difficult>0</difficult>
		<bndbox>
			<xmin>10</xmin>
			<ymin>20</ymin>
			<xmax>110</xmax>
			<ymax>120</ymax>
		</bndbox>
	</object>
	<object>
		<name> dog </name>
		<bndbox>
			<xmin>50.0</xmin>
			<ymin>60</ymin>
			<xmax>300.7</xmax>
			<ymax>230</ymax>
		</bndbox>
	</object>
</annotation>
`

func writeSample(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cat_001.xml")
	test.That(t, os.WriteFile(path, []byte(content), 0o644), test.ShouldBeNil)
	return path
}

func TestParseFile(t *testing.T) {
	rec, err := ParseFile(writeSample(t, vocSample))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rec.Filename, test.ShouldEqual, "cat_001.jpg")
	test.That(t, rec.Labels(), test.ShouldResemble, []string{"cat", "dog"})
	test.That(t, rec.Boxes()[0], test.ShouldResemble, bbox.Box{XMin: 10, YMin: 20, XMax: 110, YMax: 120})
	test.That(t, rec.Boxes()[1].XMax, test.ShouldAlmostEqual, 300.7)

	size, ok := rec.Size()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, size, test.ShouldResemble, image.Pt(320, 240))

	folder, ok := rec.Field("folder")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, folder, test.ShouldEqual, "images")
}

func TestParseToleratesMissingMetadata(t *testing.T) {
	rec, err := Parse(strings.NewReader(`<annotation><object><name>a</name>` +
		`<bndbox><xmin>1</xmin><ymin>2</ymin><xmax>3</xmax><ymax>4</ymax></bndbox></object></annotation>`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rec.Filename, test.ShouldEqual, "")
	test.That(t, rec.Objects, test.ShouldHaveLength, 1)
	_, ok := rec.Size()
	test.That(t, ok, test.ShouldBeFalse)

	empty, err := Parse(strings.NewReader(`<annotation><filename>x.jpg</filename></annotation>`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, empty.Objects, test.ShouldBeEmpty)
}

func TestParseErrors(t *testing.T) {
	for name, doc := range map[string]string{
		"not xml":      `this is not xml`,
		"unclosed":     `<annotation><folder>x</folder>`,
		"mismatched":   `<annotation><folder>x</path></annotation>`,
		"missing name": `<annotation><object><bndbox><xmin>1</xmin><ymin>2</ymin><xmax>3</xmax><ymax>4</ymax></bndbox></object></annotation>`,
		"missing box":  `<annotation><object><name>a</name></object></annotation>`,
		"missing ymax": `<annotation><object><name>a</name><bndbox><xmin>1</xmin><ymin>2</ymin><xmax>3</xmax></bndbox></object></annotation>`,
		"bad number":   `<annotation><object><name>a</name><bndbox><xmin>one</xmin><ymin>2</ymin><xmax>3</xmax><ymax>4</ymax></bndbox></object></annotation>`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseFile(writeSample(t, doc))
			test.That(t, err, test.ShouldNotBeNil)
			var perr *ParseError
			test.That(t, errors.As(err, &perr), test.ShouldBeTrue)
			test.That(t, perr.Path, test.ShouldEndWith, "cat_001.xml")
		})
	}

	_, err := ParseFile(filepath.Join(t.TempDir(), "missing.xml"))
	var perr *ParseError
	test.That(t, errors.As(err, &perr), test.ShouldBeTrue)
}

func TestSerializeRoundTrip(t *testing.T) {
	orig, err := ParseFile(writeSample(t, vocSample))
	test.That(t, err, test.ShouldBeNil)

	boxes := []bbox.Box{
		{XMin: 1, YMin: 2, XMax: 30, YMax: 40},
		{XMin: 5, YMin: 5, XMax: 6, YMax: 9},
		{XMin: 100, YMin: 100, XMax: 200, YMax: 150},
	}
	labels := []string{"bird", "cat", "bird"}

	data, err := orig.Serialize("cat_001_aug0.jpg", boxes, labels)
	test.That(t, err, test.ShouldBeNil)

	back, err := ParseBytes(data)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back.Filename, test.ShouldEqual, "cat_001_aug0.jpg")
	test.That(t, back.Labels(), test.ShouldResemble, labels)
	test.That(t, back.Boxes(), test.ShouldResemble, boxes)
	test.That(t, withoutObjects(back), test.ShouldResemble, withoutObjects(orig))
	size, _ := back.Size()
	test.That(t, size, test.ShouldResemble, image.Pt(320, 240))
	test.That(t, string(data), test.ShouldContainSubstring, `verified="yes"`)
	test.That(t, string(data), test.ShouldContainSubstring, "<database>Unknown</database>")
	test.That(t, string(data), test.ShouldContainSubstring, "<pose>Unspecified</pose>")

	// the template is not modified by a rewrite
	test.That(t, orig.Filename, test.ShouldEqual, "cat_001.jpg")
	again, err := orig.Serialize("cat_001.jpg", orig.Boxes(), orig.Labels())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(again), test.ShouldNotContainSubstring, "bird")
}

const namespacedSample = `<?xml version="1.0" encoding="UTF-8"?>
<annotation xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xsi:noNamespaceSchemaLocation="voc.xsd" verified="yes">
	<!-- labelled by hand -->
	<folder>images</folder>
	<filename>street.jpg</filename>
	<xsi:extra kind="a &amp; b">kept &lt;as is&gt;</xsi:extra>
	<size>
		<width>64</width>
		<height>48</height>
		<depth>3</depth>
	</size>
	<object>
		<name>car</name>
		<bndbox>
			<xmin>1</xmin>
			<ymin>2</ymin>
			<xmax>30</xmax>
			<ymax>40</ymax>
		</bndbox>
	</object>
</annotation>
`

// withoutObjects is the part of a record a rewrite must leave alone.
func withoutObjects(r *Record) *Element {
	root := r.doc.root.clone()
	root.removeAll("object")
	root.removeAll("filename")
	return root
}

func TestSerializeKeepsNamespacesAndComments(t *testing.T) {
	orig, err := ParseBytes([]byte(namespacedSample))
	test.That(t, err, test.ShouldBeNil)

	boxes := []bbox.Box{{XMin: 3, YMin: 4, XMax: 20, YMax: 30}}
	first, err := orig.Serialize("street_aug0.jpg", boxes, []string{"bus"})
	test.That(t, err, test.ShouldBeNil)

	back, err := ParseBytes(first)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, withoutObjects(back), test.ShouldResemble, withoutObjects(orig))
	test.That(t, back.doc.prolog, test.ShouldResemble, []string{`<?xml version="1.0" encoding="UTF-8"?>`})
	test.That(t, back.Labels(), test.ShouldResemble, []string{"bus"})
	test.That(t, back.Boxes(), test.ShouldResemble, boxes)

	out := string(first)
	test.That(t, out, test.ShouldContainSubstring,
		`<annotation xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xsi:noNamespaceSchemaLocation="voc.xsd" verified="yes">`)
	test.That(t, out, test.ShouldContainSubstring, "<!-- labelled by hand -->")
	test.That(t, out, test.ShouldContainSubstring, "<xsi:extra kind=")
	test.That(t, out, test.ShouldNotContainSubstring, "_xmlns")

	// rewriting a rewrite is stable
	second, err := back.Serialize("street_aug0.jpg", boxes, []string{"bus"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(second), test.ShouldEqual, out)
}

func TestSerializeTruncatesToIntegers(t *testing.T) {
	rec, err := ParseBytes([]byte(`<annotation><filename>a.png</filename></annotation>`))
	test.That(t, err, test.ShouldBeNil)

	data, err := rec.Serialize("b.png", []bbox.Box{{XMin: 10.9, YMin: 3.2, XMax: 11.4, YMax: 7.99}}, []string{"x"})
	test.That(t, err, test.ShouldBeNil)
	back, err := ParseBytes(data)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back.Boxes()[0], test.ShouldResemble, bbox.Box{XMin: 10, YMin: 3, XMax: 11, YMax: 7})
}

func TestSerializeInsertsMissingFields(t *testing.T) {
	rec, err := ParseBytes([]byte(`<annotation><folder>f</folder></annotation>`))
	test.That(t, err, test.ShouldBeNil)

	data, err := rec.SerializeWithSize("new.jpg", nil, nil, image.Pt(640, 480))
	test.That(t, err, test.ShouldBeNil)
	back, err := ParseBytes(data)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, back.Filename, test.ShouldEqual, "new.jpg")
	size, ok := back.Size()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, size, test.ShouldResemble, image.Pt(640, 480))
	test.That(t, strings.Index(string(data), "<folder>"), test.ShouldBeLessThan, strings.Index(string(data), "<filename>"))
}

func TestSerializeLengthMismatch(t *testing.T) {
	rec, err := ParseBytes([]byte(`<annotation/>`))
	test.That(t, err, test.ShouldBeNil)
	_, err = rec.Serialize("a.jpg", []bbox.Box{{XMax: 1, YMax: 1}}, nil)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = rec.SerializeWithSize("a.jpg", nil, nil, image.Pt(0, 10))
	test.That(t, err, test.ShouldNotBeNil)
}
