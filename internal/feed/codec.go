package feed

import (
	"encoding/xml"
	"io"
	"strings"
	"unicode/utf8"

	"gitlab.com/tozd/go/errors"
)

// Feed is the parsed form of one document: a record per <item> and the schema
// derived from their field nodes.
type Feed struct {
	Records []*Record
	Schema  []SchemaEntry
}

// Items returns a snapshot of every record's working fields.
func (f *Feed) Items() []Item {
	out := make([]Item, 0, len(f.Records))
	for _, r := range f.Records {
		out = append(out, r.Item())
	}
	return out
}

// Parse reads an XML document holding <item> elements at any depth. The
// direct children of each item are its fields: the tag name (prefix included,
// e.g. "g:id") is the field name and the concatenated text content is the
// value. Fields without text are left out of the record but still appear in
// the schema. A `required` attribute marks the field as required and a
// `description` attribute provides its help text.
//
// Text is expected to be UTF-8; an encoding named in the XML declaration is
// not re-applied.
//
// Parse fails with *ParseError when the document is not well-formed or holds
// no items.
func Parse(text string) (*Feed, error) {
	dec := xml.NewDecoder(strings.NewReader(strings.TrimPrefix(text, "\ufeff")))
	dec.Strict = true
	dec.CharsetReader = func(_ string, in io.Reader) (io.Reader, error) { return in, nil }

	var (
		stack     []string
		items     []itemNode
		item      *itemNode
		itemDepth int
		field     *fieldNode
		buf       strings.Builder
		sawRoot   bool
	)

	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ParseError{Reason: "malformed XML", Err: err}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if len(stack) == 0 {
				if sawRoot {
					return nil, &ParseError{Reason: "malformed XML", Err: errors.New("more than one root element")}
				}
				sawRoot = true
			}
			name := qualifiedName(t.Name)
			stack = append(stack, name)
			depth := len(stack)

			switch {
			case item == nil && name == "item":
				item = &itemNode{}
				itemDepth = depth
			case item != nil && depth == itemDepth+1:
				field = &fieldNode{name: name}
				for _, a := range t.Attr {
					if a.Name.Space != "" {
						continue
					}
					switch a.Name.Local {
					case "required":
						field.required = true
					case "description":
						field.description = a.Value
					}
				}
				buf.Reset()
			}

		case xml.EndElement:
			name := qualifiedName(t.Name)
			if len(stack) == 0 || stack[len(stack)-1] != name {
				return nil, &ParseError{Reason: "malformed XML", Err: errors.Errorf("unexpected end element </%s>", name)}
			}
			depth := len(stack)
			stack = stack[:depth-1]

			switch {
			case field != nil && depth == itemDepth+1:
				field.value = buf.String()
				item.fields = append(item.fields, *field)
				field = nil
			case item != nil && depth == itemDepth:
				items = append(items, *item)
				item = nil
			}

		case xml.CharData:
			if field != nil {
				buf.Write(t)
				continue
			}
			if len(stack) == 0 && strings.TrimSpace(string(t)) != "" {
				return nil, &ParseError{Reason: "malformed XML", Err: errors.New("text outside the root element")}
			}
		}
	}

	if len(stack) > 0 {
		return nil, &ParseError{Reason: "malformed XML", Err: errors.Errorf("element <%s> is not closed", stack[len(stack)-1])}
	}
	if !sawRoot {
		return nil, &ParseError{Reason: "malformed XML", Err: errors.New("no root element")}
	}
	if len(items) == 0 {
		return nil, &ParseError{Reason: "no <item> elements found"}
	}

	f := &Feed{
		Records: make([]*Record, 0, len(items)),
		Schema:  extractSchema(items),
	}
	for _, it := range items {
		fields := make([]Field, 0, len(it.fields))
		for _, fn := range it.fields {
			if fn.value == "" {
				continue
			}
			fields = append(fields, Field{Name: fn.name, Value: fn.value})
		}
		f.Records = append(f.Records, NewRecord(fields))
	}
	return f, nil
}

func qualifiedName(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

// Attr is a root element attribute written by a Layout.
type Attr struct {
	Name  string
	Value string
}

// Layout controls the wrapper elements Serialize writes around the items.
type Layout struct {
	Root      string
	RootAttrs []Attr
	// Channel, when set, is an extra wrapper between the root and the items.
	Channel string
	Indent  string
}

// RSSLayout is the Google Shopping flavoured RSS 2.0 wrapper.
var RSSLayout = Layout{
	Root: "rss",
	RootAttrs: []Attr{
		{Name: "xmlns:g", Value: "http://base.google.com/ns/1.0"},
		{Name: "version", Value: "2.0"},
	},
	Channel: "channel",
	Indent:  "  ",
}

// Serialize writes records using RSSLayout.
func Serialize(records []*Record) (string, error) {
	return RSSLayout.Serialize(records)
}

// Serialize writes an XML declaration, the wrapper elements and one <item>
// per record holding a child element per working key in key order. Keys with
// an empty value are skipped. Parsing the output yields the same non-empty
// name/value pairs.
func (l Layout) Serialize(records []*Record) (string, error) {
	root := l.Root
	if root == "" {
		root = "items"
	}
	for _, name := range []string{root, l.Channel} {
		if name != "" && !isXMLName(name) {
			return "", errors.Errorf("layout element %q is not a valid XML name", name)
		}
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString("<" + root)
	for _, a := range l.RootAttrs {
		if !isXMLName(a.Name) {
			return "", errors.Errorf("layout attribute %q is not a valid XML name", a.Name)
		}
		b.WriteString(" " + a.Name + `="`)
		writeEscaped(&b, a.Value)
		b.WriteString(`"`)
	}
	b.WriteString(">\n")

	level := 1
	if l.Channel != "" {
		b.WriteString(l.indent(level) + "<" + l.Channel + ">\n")
		level++
	}

	for _, r := range records {
		if r == nil {
			continue
		}
		b.WriteString(l.indent(level) + "<item>\n")
		for _, k := range r.order {
			v := r.current[k]
			if v == "" {
				continue
			}
			if !isXMLName(k) {
				return "", &RuleError{Target: k, Reason: "field name is not a valid XML element name"}
			}
			b.WriteString(l.indent(level+1) + "<" + k + ">")
			writeEscaped(&b, v)
			b.WriteString("</" + k + ">\n")
		}
		b.WriteString(l.indent(level) + "</item>\n")
	}

	if l.Channel != "" {
		b.WriteString(l.indent(1) + "</" + l.Channel + ">\n")
	}
	b.WriteString("</" + root + ">")
	return b.String(), nil
}

func (l Layout) indent(level int) string {
	return strings.Repeat(l.Indent, level)
}

// writeEscaped writes s with the five predefined entities escaped. Carriage
// returns become character references so they survive re-parsing, and
// characters XML cannot carry are replaced with U+FFFD.
func writeEscaped(b *strings.Builder, s string) {
	for _, c := range s {
		switch c {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&apos;")
		case '\r':
			b.WriteString("&#xD;")
		default:
			if !isXMLChar(c) {
				c = utf8.RuneError
			}
			b.WriteRune(c)
		}
	}
}

func isXMLChar(c rune) bool {
	return c == 0x09 || c == 0x0A ||
		c >= 0x20 && c <= 0xD7FF ||
		c >= 0xE000 && c <= 0xFFFD ||
		c >= 0x10000 && c <= 0x10FFFF
}
