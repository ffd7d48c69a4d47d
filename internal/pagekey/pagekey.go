// Package pagekey derives page indices and cache stems from page image paths.
package pagekey

import (
	"regexp"
	"strings"

	"github.com/joseph-ayodele/pagescribe/constants"
)

// Unidentified is returned for paths that carry no page-<digits> marker.
const Unidentified = "unidentified"

var rePage = regexp.MustCompile(`page-(\d+)`)

// Resolve returns the digits following the first "page-" marker in path.
func Resolve(path string) string {
	m := rePage.FindStringSubmatch(path)
	if m == nil {
		return Unidentified
	}
	return m[1]
}

// ResolveAll maps Resolve over paths, keeping order.
func ResolveAll(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = Resolve(p)
	}
	return out
}

// Stem is the sidecar file name stem for a page set, e.g. document_page_1_2.
func Stem(paths []string) string {
	return constants.StemPrefix + strings.Join(ResolveAll(paths), "_")
}
