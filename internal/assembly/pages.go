package assembly

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/joseph-ayodele/pagescribe/constants"
	"github.com/joseph-ayodele/pagescribe/internal/common"
	"github.com/joseph-ayodele/pagescribe/internal/pagekey"
)

// PageCounter reports how many pages a PDF has.
type PageCounter interface {
	PageCount(path string) (int, error)
}

// PDFCPUCounter counts pages with pdfcpu.
type PDFCPUCounter struct{}

func (PDFCPUCounter) PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("pdfcpu page count: %w", err)
	}
	return n, nil
}

// SourceResolver finds the PDF a data directory was rendered from.
type SourceResolver interface {
	SourcePDF(dataDir string) string
}

// DataDirResolver maps "<doc>-data" to "<doc>.pdf" next to it.
type DataDirResolver struct{}

func (DataDirResolver) SourcePDF(dataDir string) string {
	dir := filepath.Clean(dataDir)
	return strings.TrimSuffix(dir, constants.DataDirSuffix) + constants.PDFExt
}

// PageSelection resolves the qpdf page list for pagesPaths, e.g. "1,2,5".
// Every index must be a positive number and, when pageCount > 0, at most pageCount.
func PageSelection(pagesPaths []string, pageCount int) (string, error) {
	if len(pagesPaths) == 0 {
		return "", common.FormatError("record has no pages", nil)
	}
	indices := pagekey.ResolveAll(pagesPaths)
	out := make([]string, len(indices))
	for i, idx := range indices {
		n, err := strconv.Atoi(idx)
		if err != nil || n < 1 {
			return "", common.FormatError(fmt.Sprintf("page %q has no usable page number", pagesPaths[i]), nil)
		}
		if pageCount > 0 && n > pageCount {
			return "", common.FormatError(
				fmt.Sprintf("page %d is out of range: source has %d pages", n, pageCount), nil)
		}
		out[i] = strconv.Itoa(n)
	}
	return strings.Join(out, ","), nil
}
