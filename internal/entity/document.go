package entity

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"slices"
	"strings"

	"github.com/joseph-ayodele/pagescribe/internal/common"
	"github.com/joseph-ayodele/pagescribe/internal/xmlfmt"
)

// JSON keys of the fields the application itself reads and writes.
const (
	KeyFileName        = "file_name"
	KeyFileNameHistory = "file_name_history"
	KeyPagesPaths      = "pages_paths"
	KeyJSONFilePath    = "json_file_path"

	// element wrapping each image path inside <pages_paths>
	pagePathElement = "page_path"
)

// DocumentRecord is the persisted result of naming a page set.
// Extra holds every other top-level field the naming model produced and is
// written back as sibling keys of the known fields.
type DocumentRecord struct {
	FileName        string         `json:"file_name"`
	FileNameHistory []string       `json:"file_name_history"`
	PagesPaths      []string       `json:"pages_paths"`
	JSONFilePath    string         `json:"json_file_path"`
	Extra           map[string]any `json:"-"`
}

// MarshalJSON flattens Extra next to the known fields. Keys come out sorted,
// so equal records always encode to equal bytes.
func (r DocumentRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+4)
	for k, v := range r.Extra {
		out[k] = v
	}
	history := r.FileNameHistory
	if history == nil {
		history = []string{}
	}
	pages := r.PagesPaths
	if pages == nil {
		pages = []string{}
	}
	out[KeyFileName] = r.FileName
	out[KeyFileNameHistory] = history
	out[KeyPagesPaths] = pages
	out[KeyJSONFilePath] = r.JSONFilePath
	return json.Marshal(out)
}

// UnmarshalJSON reads the known fields and keeps everything else in Extra.
func (r *DocumentRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var rec DocumentRecord
	fields := []struct {
		key string
		dst any
	}{
		{KeyFileName, &rec.FileName},
		{KeyFileNameHistory, &rec.FileNameHistory},
		{KeyPagesPaths, &rec.PagesPaths},
		{KeyJSONFilePath, &rec.JSONFilePath},
	}
	for _, f := range fields {
		v, ok := raw[f.key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, f.dst); err != nil {
			return fmt.Errorf("field %s: %w", f.key, err)
		}
		delete(raw, f.key)
	}

	if len(raw) > 0 {
		rec.Extra = make(map[string]any, len(raw))
		for k, v := range raw {
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return fmt.Errorf("field %s: %w", k, err)
			}
			rec.Extra[k] = val
		}
	}
	if rec.FileNameHistory == nil {
		rec.FileNameHistory = []string{}
	}
	*r = rec
	return nil
}

// ApplyName sets the current file name, keeping the history append-only and
// free of duplicates. It reports whether the record changed.
func (r *DocumentRecord) ApplyName(name string) bool {
	if r.FileName == name {
		return false
	}
	if len(r.FileNameHistory) == 0 {
		r.FileNameHistory = append(r.FileNameHistory, r.FileName)
	}
	if !slices.Contains(r.FileNameHistory, name) {
		r.FileNameHistory = append(r.FileNameHistory, name)
	}
	r.FileName = name
	return true
}

// Envelope wraps the model's naming answer together with the sidecar path and
// the page paths into a single <document> element.
func Envelope(jsonPath string, pagesPaths []string, modelXML string) string {
	var b strings.Builder
	b.WriteString("<document><")
	b.WriteString(KeyJSONFilePath)
	b.WriteString(">")
	escape(&b, jsonPath)
	b.WriteString("</")
	b.WriteString(KeyJSONFilePath)
	b.WriteString("><")
	b.WriteString(KeyPagesPaths)
	b.WriteString(">")
	for _, p := range pagesPaths {
		b.WriteString("<" + pagePathElement + ">")
		escape(&b, p)
		b.WriteString("</" + pagePathElement + ">")
	}
	b.WriteString("</")
	b.WriteString(KeyPagesPaths)
	b.WriteString(">")
	b.WriteString(modelXML)
	b.WriteString("</document>")
	return b.String()
}

func escape(b *strings.Builder, s string) {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	b.Write(buf.Bytes())
}

// RecordFromEnvelope decodes an envelope built by Envelope into a record.
func RecordFromEnvelope(envelope string) (*DocumentRecord, error) {
	root, err := xmlfmt.Parse(envelope)
	if err != nil {
		return nil, err
	}
	if root.Name != "document" {
		return nil, common.FormatError("decode naming answer", fmt.Errorf("unexpected root element <%s>", root.Name))
	}

	// Envelope writes json_file_path and pages_paths first; copies echoed
	// by the model later in the answer are ignored.
	var seenJSON, seenPages bool
	rec := &DocumentRecord{FileNameHistory: []string{}}
	for _, c := range root.Children {
		switch c.Name {
		case KeyJSONFilePath:
			if seenJSON {
				continue
			}
			seenJSON = true
			rec.JSONFilePath = c.Text
		case KeyPagesPaths:
			if seenPages {
				continue
			}
			seenPages = true
			for _, p := range c.Children {
				if p.Name == pagePathElement {
					rec.PagesPaths = append(rec.PagesPaths, p.Text)
				}
			}
		case KeyFileName:
			if rec.FileName == "" {
				rec.FileName = c.Text
			}
		case KeyFileNameHistory:
			// history is owned by the rename flow, never by the model
		default:
			if rec.Extra == nil {
				rec.Extra = make(map[string]any)
			}
			v := c.Value()
			switch existing := rec.Extra[c.Name].(type) {
			case nil:
				rec.Extra[c.Name] = v
			case []any:
				rec.Extra[c.Name] = append(existing, v)
			default:
				rec.Extra[c.Name] = []any{existing, v}
			}
		}
	}

	if strings.TrimSpace(rec.FileName) == "" {
		return nil, common.FormatError("decode naming answer", fmt.Errorf("missing <%s> element", KeyFileName))
	}
	return rec, nil
}
