// Package sidecar stores the per-page-set XML and JSON files next to the page images.
package sidecar

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/pagescribe/constants"
	"github.com/joseph-ayodele/pagescribe/internal/common"
	"github.com/joseph-ayodele/pagescribe/internal/entity"
	"github.com/joseph-ayodele/pagescribe/internal/pagekey"
)

const (
	dirPerm  fs.FileMode = 0o755
	filePerm fs.FileMode = 0o644
)

// State says which sidecars of a page set exist on disk.
type State int

const (
	StateEmpty    State = iota // neither file
	StateXMLOnly               // extraction finished, naming did not
	StateComplete              // both files
)

func (s State) String() string {
	switch s {
	case StateComplete:
		return "complete"
	case StateXMLOnly:
		return "xml_only"
	default:
		return "empty"
	}
}

// Paths locates the two sidecars of one page set.
type Paths struct {
	Dir  string
	Stem string
	XML  string
	JSON string
}

// PathsFor derives the sidecar paths from the ordered page image paths.
// The sidecars live in the parent directory of the first page.
func PathsFor(pages []string) (Paths, error) {
	if len(pages) == 0 {
		return Paths{}, common.ConfigError("no page images given", common.ErrInvalidInput)
	}
	first, err := filepath.Abs(pages[0])
	if err != nil {
		return Paths{}, common.FilesystemError("resolve page path", err)
	}
	return NewPaths(filepath.Dir(first), pagekey.Stem(pages)), nil
}

// NewPaths builds sidecar paths for stem inside dir.
func NewPaths(dir, stem string) Paths {
	return Paths{
		Dir:  dir,
		Stem: stem,
		XML:  filepath.Join(dir, stem+constants.XMLExt),
		JSON: filepath.Join(dir, stem+constants.JSONExt),
	}
}

// Cache reads and writes sidecar files. It does no locking; concurrent
// writers of the same stem race and the last write wins.
type Cache struct {
	logger *slog.Logger
}

func NewCache(logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{logger: logger}
}

// State reports which sidecars exist for p.
func (c *Cache) State(p Paths) (State, error) {
	jsonOK, err := exists(p.JSON)
	if err != nil {
		return StateEmpty, err
	}
	xmlOK, err := exists(p.XML)
	if err != nil {
		return StateEmpty, err
	}
	switch {
	case jsonOK && xmlOK:
		return StateComplete, nil
	case xmlOK:
		return StateXMLOnly, nil
	default:
		if jsonOK {
			c.logger.Warn("sidecar.json_without_xml", "json", p.JSON)
		}
		return StateEmpty, nil
	}
}

// ReadXML returns the stored document XML verbatim.
func (c *Cache) ReadXML(p Paths) (string, error) {
	b, err := os.ReadFile(p.XML)
	if err != nil {
		return "", common.FilesystemError(fmt.Sprintf("read %s", p.XML), err)
	}
	return string(b), nil
}

// WriteXML stores the document XML, creating the directory when needed.
func (c *Cache) WriteXML(p Paths, documentXML string) error {
	if err := writeFile(p.XML, []byte(documentXML)); err != nil {
		return err
	}
	c.logger.Info("sidecar.xml.saved", "path", p.XML, "bytes", len(documentXML))
	return nil
}

// ReadRecord loads and validates the JSON sidecar at path.
func (c *Cache) ReadRecord(path string) (*entity.DocumentRecord, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, common.FilesystemError(fmt.Sprintf("read %s", path), err)
	}
	if err := ValidateRecordJSON(b); err != nil {
		return nil, common.FormatError(fmt.Sprintf("invalid record %s", path), err)
	}
	var rec entity.DocumentRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, common.FormatError(fmt.Sprintf("decode record %s", path), err)
	}
	return &rec, nil
}

// WriteRecord encodes rec and stores it at path.
func (c *Cache) WriteRecord(path string, rec *entity.DocumentRecord) error {
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return common.FormatError("encode record", err)
	}
	if err := writeFile(path, b); err != nil {
		return err
	}
	c.logger.Info("sidecar.json.saved", "path", path, "file_name", rec.FileName)
	return nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return common.FilesystemError(fmt.Sprintf("create directory for %s", path), err)
	}
	if err := os.WriteFile(path, data, filePerm); err != nil {
		return common.FilesystemError(fmt.Sprintf("write %s", path), err)
	}
	return nil
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, common.FilesystemError(fmt.Sprintf("stat %s", path), err)
}
