package constants

import "strings"

// Filesystem layout shared by the pipeline and the assembly stage.
const (
	// DataDirSuffix marks the directory holding the page images of <doc>.pdf.
	DataDirSuffix = "-data"
	// DoneDirName is created under the data directory for finished PDFs.
	DoneDirName = "done"

	StemPrefix = "document_page_"

	XMLExt  = ".xml"
	JSONExt = ".json"
	PDFExt  = ".pdf"

	// PageImageMediaType is the media type sent for every page image.
	PageImageMediaType = "image/webp"
)

// PageImageExtensions holds the extensions the catalog treats as page images.
var PageImageExtensions = map[string]struct{}{
	"webp": {},
	"png":  {},
	"jpg":  {},
	"jpeg": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsPageImageExt reports whether ext (with or without dot) is a page image.
func IsPageImageExt(ext string) bool {
	_, ok := PageImageExtensions[NormalizeExt(ext)]
	return ok
}
