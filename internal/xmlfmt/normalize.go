// Package xmlfmt re-serializes model XML into a stable, diff-friendly form
// and decodes it into generic trees.
package xmlfmt

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/joseph-ayodele/pagescribe/internal/common"
)

const indent = "  "

// Normalize parses input as a token stream and writes it back out with
// text nodes trimmed, whitespace-only text dropped, empty elements expanded
// and child elements indented. Input may hold several sibling roots.
func Normalize(input string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(input))
	dec.Strict = true

	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", indent)

	var open []string
	for {
		tok, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", common.FormatError("parse xml", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			t = flattenStart(t)
			open = append(open, t.Name.Local)
			tok = t
		case xml.EndElement:
			name := qualified(t.Name)
			if len(open) == 0 || open[len(open)-1] != name {
				line, _ := dec.InputPos()
				return "", common.FormatError("parse xml",
					fmt.Errorf("line %d: unexpected end element </%s>", line, name))
			}
			open = open[:len(open)-1]
			tok = xml.EndElement{Name: xml.Name{Local: name}}
		case xml.CharData:
			trimmed := bytes.TrimSpace(t)
			if len(trimmed) == 0 {
				continue
			}
			tok = xml.CharData(trimmed)
		}

		if err := enc.EncodeToken(tok); err != nil {
			return "", common.FormatError("write xml", err)
		}
	}
	if len(open) > 0 {
		return "", common.FormatError("parse xml",
			fmt.Errorf("unexpected EOF: element <%s> is not closed", open[len(open)-1]))
	}
	if err := enc.Flush(); err != nil {
		return "", common.FormatError("write xml", err)
	}
	return buf.String(), nil
}

// flattenStart folds namespace prefixes into local names so the encoder
// writes them back verbatim instead of inventing xmlns attributes.
func flattenStart(t xml.StartElement) xml.StartElement {
	out := xml.StartElement{Name: xml.Name{Local: qualified(t.Name)}}
	if len(t.Attr) > 0 {
		out.Attr = make([]xml.Attr, len(t.Attr))
		for i, a := range t.Attr {
			out.Attr[i] = xml.Attr{Name: xml.Name{Local: qualified(a.Name)}, Value: a.Value}
		}
	}
	return out
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}
