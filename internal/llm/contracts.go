package llm

import (
	"context"
	"fmt"
)

// PageRequest describes one page image to transcribe.
type PageRequest struct {
	Path      string // image file on disk
	PageIndex string // digits from the page-N marker, or "unidentified"
}

// PageExtractor turns one page image into an XML fragment
// of the form <page number="N">...</page>.
type PageExtractor interface {
	ExtractPage(ctx context.Context, req PageRequest) (string, error)
}

// Namer asks the model for a file name and metadata for a whole document.
// The returned text is the model's raw XML answer.
type Namer interface {
	NameDocument(ctx context.Context, documentXML string) (string, error)
}

// Usage is the token accounting reported by the provider.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ProviderError is the decoded error payload of a non-2xx response.
type ProviderError struct {
	Status  int
	Type    string
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider request error (status %d): type:%s, message:%s", e.Status, e.Type, e.Message)
}
