package iflow

import (
	"encoding/xml"
	"io"
	"strings"
)

// element is a lightweight DOM node used by the structural parser. The
// standard encoding/xml decoder resolves namespace prefixes to URIs, so
// lookups match on local name plus (optionally) namespace URI rather than
// on the prefix spelling used by a particular SAP tooling version.
type element struct {
	Space    string
	Local    string
	Attrs    []xml.Attr
	Children []*element
	Text     string
}

// parseDocument decodes XML text into an element tree. A syntax error
// anywhere in the document fails the whole parse; callers then fall back
// to regex extraction.
func parseDocument(content string) (*element, error) {
	dec := xml.NewDecoder(strings.NewReader(content))
	var root *element
	var stack []*element
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			el := &element{
				Space: t.Name.Space,
				Local: t.Name.Local,
				Attrs: append([]xml.Attr(nil), t.Attr...),
			}
			if len(stack) == 0 {
				root = el
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, el)
			}
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}
	if root == nil {
		return nil, &xml.SyntaxError{Msg: "no root element"}
	}
	return root, nil
}

// attr returns the value of the first attribute whose local name matches,
// regardless of namespace prefix.
func (e *element) attr(local string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

// attrNS returns the value of an attribute matching both namespace URI and
// local name.
func (e *element) attrNS(space, local string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name.Local == local && a.Name.Space == space {
			return a.Value, true
		}
	}
	return "", false
}

// name returns the element's name attribute or the given fallback.
func (e *element) name(fallback string) string {
	if v, ok := e.attr("name"); ok && v != "" {
		return v
	}
	return fallback
}

// text returns the trimmed character data of the element.
func (e *element) text() string {
	return strings.TrimSpace(e.Text)
}

// descendants appends to out every element in the subtree (excluding e
// itself) matching the predicate, in document order.
func (e *element) descendants(match func(*element) bool, out []*element) []*element {
	for _, c := range e.Children {
		if match(c) {
			out = append(out, c)
		}
		out = c.descendants(match, out)
	}
	return out
}

// findAll returns every descendant matching the predicate.
func (e *element) findAll(match func(*element) bool) []*element {
	return e.descendants(match, nil)
}

// findFirst returns the first matching descendant in document order.
func (e *element) findFirst(match func(*element) bool) *element {
	for _, c := range e.Children {
		if match(c) {
			return c
		}
		if found := c.findFirst(match); found != nil {
			return found
		}
	}
	return nil
}

// childFirst returns the first direct child matching the predicate.
func (e *element) childFirst(match func(*element) bool) *element {
	for _, c := range e.Children {
		if match(c) {
			return c
		}
	}
	return nil
}
