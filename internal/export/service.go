// Package export lists the page sets under a directory tree as an XLSX catalog.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/pagescribe/constants"
	"github.com/joseph-ayodele/pagescribe/internal/pagekey"
	"github.com/joseph-ayodele/pagescribe/internal/sidecar"
)

// Service is a tiny façade over the sidecar cache that produces XLSX bytes for exports.
type Service struct {
	cache  *sidecar.Cache
	logger *slog.Logger
}

func NewService(cache *sidecar.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cache == nil {
		cache = sidecar.NewCache(logger)
	}
	return &Service{cache: cache, logger: logger}
}

const sheet = "Documents"

var headers = []string{
	"Status",
	"File Name",
	"Pages",
	"Page Count",
	"Name History",
	"JSON Path",
	"Finished PDF",
}

// ExportXLSX returns an XLSX workbook (as bytes) with one row per page set under root.
func (s *Service) ExportXLSX(ctx context.Context, root string) ([]byte, error) {
	start := time.Now()

	entries, stats, err := s.Scan(ctx, root)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, e := range entries {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, string(e.Status))
		if e.Record == nil {
			// extraction finished, naming did not: only the stem is known
			write(2, "")
			pages := pagesFromStem(e.Stem)
			write(3, strings.Join(pages, ","))
			write(4, len(pages))
			row++
			continue
		}

		r := e.Record
		write(2, r.FileName)
		write(3, strings.Join(pagekey.ResolveAll(r.PagesPaths), ","))
		write(4, len(r.PagesPaths))
		write(5, strings.Join(r.FileNameHistory, " → "))
		write(6, r.JSONFilePath)
		write(7, e.Finished)
		row++
	}

	// Widen a few columns
	_ = f.SetColWidth(sheet, "A", "A", 12) // status
	_ = f.SetColWidth(sheet, "B", "B", 48) // name
	_ = f.SetColWidth(sheet, "C", "D", 12) // pages
	_ = f.SetColWidth(sheet, "E", "E", 60) // history
	_ = f.SetColWidth(sheet, "F", "G", 70) // paths

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"root", root,
		"rows", len(entries),
		"invalid", stats.Invalid,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// pagesFromStem recovers the page indices from document_page_<i1>_<i2>.
func pagesFromStem(stem string) []string {
	rest := strings.TrimPrefix(stem, constants.StemPrefix)
	if rest == "" || rest == stem {
		return nil
	}
	parts := strings.Split(rest, "_")
	out := parts[:0]
	for _, p := range parts {
		if _, err := strconv.Atoi(p); err == nil || p == pagekey.Unidentified {
			out = append(out, p)
		}
	}
	return out
}
