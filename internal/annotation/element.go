package annotation

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Attr is an attribute with its name as written, prefix included.
type Attr struct {
	Name  string
	Value string
}

// Element is a generic XML node. Records keep the whole tree so that a rewrite only touches
// the filename, size and object elements. Names keep their namespace prefix verbatim
// ("xsi:type"), so documents come back out with the declarations they went in with.
type Element struct {
	Name     string
	Attrs    []Attr
	Text     string
	Children []*Element

	comment bool
}

func newElement(name, text string, children ...*Element) *Element {
	return &Element{Name: name, Text: text, Children: children}
}

// document is a parsed file: the root element plus whatever surrounds it.
type document struct {
	prolog []string
	root   *Element
	epilog []string
}

func rawName(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

// decodeDocument builds the tree from raw tokens. Raw tokens are not namespace resolved, which
// is what keeps prefixes and xmlns declarations intact.
func decodeDocument(data []byte) (*document, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	doc := &document{}
	var stack []*Element

	outside := func(s string) {
		if doc.root == nil {
			doc.prolog = append(doc.prolog, s)
		} else {
			doc.epilog = append(doc.epilog, s)
		}
	}

	for {
		tok, err := d.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if len(stack) == 0 && doc.root != nil {
				return nil, errors.New("more than one root element")
			}
			el := &Element{Name: rawName(t.Name)}
			for _, a := range t.Attr {
				el.Attrs = append(el.Attrs, Attr{Name: rawName(a.Name), Value: a.Value})
			}
			if len(stack) == 0 {
				doc.root = el
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, el)
			}
			stack = append(stack, el)
		case xml.EndElement:
			name := rawName(t.Name)
			if len(stack) == 0 || stack[len(stack)-1].Name != name {
				return nil, errors.Errorf("unexpected end element </%s>", name)
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			} else if strings.TrimSpace(string(t)) != "" {
				return nil, errors.New("text outside the root element")
			}
		case xml.Comment:
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, &Element{Text: string(t), comment: true})
			} else {
				outside("<!--" + string(t) + "-->")
			}
		case xml.ProcInst:
			if len(stack) == 0 {
				outside("<?" + strings.TrimSpace(t.Target+" "+string(t.Inst)) + "?>")
			}
		case xml.Directive:
			if len(stack) == 0 {
				outside("<!" + string(t) + ">")
			}
		}
	}
	if doc.root == nil {
		return nil, errors.New("no root element")
	}
	if len(stack) > 0 {
		return nil, errors.Errorf("element <%s> is never closed", stack[len(stack)-1].Name)
	}
	return doc, nil
}

// encode writes the document with one tab of indentation per level.
func (doc *document) encode(b *bytes.Buffer) {
	for _, s := range doc.prolog {
		b.WriteString(s)
		b.WriteByte('\n')
	}
	doc.root.write(b, 0)
	for _, s := range doc.epilog {
		b.WriteString(s)
		b.WriteByte('\n')
	}
}

func (e *Element) write(b *bytes.Buffer, depth int) {
	indent := strings.Repeat("\t", depth)
	b.WriteString(indent)
	if e.comment {
		b.WriteString("<!--" + e.Text + "-->\n")
		return
	}

	b.WriteString("<" + e.Name)
	for _, a := range e.Attrs {
		b.WriteString(" " + a.Name + `="`)
		xml.EscapeText(b, []byte(a.Value)) //nolint:errcheck
		b.WriteByte('"')
	}
	b.WriteByte('>')

	if len(e.Children) == 0 {
		xml.EscapeText(b, []byte(e.Text)) //nolint:errcheck
		b.WriteString("</" + e.Name + ">\n")
		return
	}
	b.WriteByte('\n')
	if text := strings.TrimSpace(e.Text); text != "" {
		b.WriteString(indent + "\t")
		xml.EscapeText(b, []byte(text)) //nolint:errcheck
		b.WriteByte('\n')
	}
	for _, c := range e.Children {
		c.write(b, depth+1)
	}
	b.WriteString(indent + "</" + e.Name + ">\n")
}

// Child returns the first direct child called name.
func (e *Element) Child(name string) *Element {
	for _, c := range e.Children {
		if !c.comment && c.Name == name {
			return c
		}
	}
	return nil
}

// ChildrenNamed returns every direct child called name, in document order.
func (e *Element) ChildrenNamed(name string) []*Element {
	var out []*Element
	for _, c := range e.Children {
		if !c.comment && c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Value is the trimmed text of the child called name.
func (e *Element) Value(name string) (string, bool) {
	c := e.Child(name)
	if c == nil {
		return "", false
	}
	return strings.TrimSpace(c.Text), true
}

func (e *Element) clone() *Element {
	out := &Element{Name: e.Name, Text: e.Text, comment: e.comment}
	if len(e.Attrs) > 0 {
		out.Attrs = append([]Attr(nil), e.Attrs...)
	}
	out.Children = make([]*Element, 0, len(e.Children))
	for _, c := range e.Children {
		out.Children = append(out.Children, c.clone())
	}
	return out
}

// normalize drops the indentation whitespace between child elements.
func (e *Element) normalize() {
	if len(e.Children) > 0 && strings.TrimSpace(e.Text) == "" {
		e.Text = ""
	}
	for _, c := range e.Children {
		c.normalize()
	}
}

func (e *Element) removeAll(name string) {
	kept := e.Children[:0]
	for _, c := range e.Children {
		if c.comment || c.Name != name {
			kept = append(kept, c)
		}
	}
	e.Children = kept
}

// setChild overwrites the text of the named child, inserting it after `after` (or first) when
// it does not exist yet.
func (e *Element) setChild(name, text, after string) *Element {
	if c := e.Child(name); c != nil {
		c.Text = text
		return c
	}
	c := newElement(name, text)
	idx := 0
	for i, sib := range e.Children {
		if !sib.comment && sib.Name == after {
			idx = i + 1
			break
		}
	}
	e.Children = append(e.Children, nil)
	copy(e.Children[idx+1:], e.Children[idx:])
	e.Children[idx] = c
	return c
}
