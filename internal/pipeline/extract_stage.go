package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/pagescribe/internal/common"
	"github.com/joseph-ayodele/pagescribe/internal/llm"
	"github.com/joseph-ayodele/pagescribe/internal/pagekey"
	"github.com/joseph-ayodele/pagescribe/internal/xmlfmt"
)

// ExtractStage transcribes every page image and merges the fragments into
// one normalized <document>.
type ExtractStage struct {
	Extractor llm.PageExtractor
	Workers   int // concurrent page requests; 1 keeps them strictly sequential
	Logger    *slog.Logger
}

func NewExtractStage(extractor llm.PageExtractor, workers int, logger *slog.Logger) *ExtractStage {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}
	return &ExtractStage{Extractor: extractor, Workers: workers, Logger: logger}
}

// Run returns the normalized document XML for pages, in page order.
// The first failing page cancels the requests that have not started yet.
func (s *ExtractStage) Run(ctx context.Context, pages []string) (string, error) {
	start := time.Now()
	log := s.Logger.With("run_id", common.RequestIDFromContext(ctx))
	fragments := make([]string, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Workers)
	for i, path := range pages {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			req := llm.PageRequest{Path: path, PageIndex: pagekey.Resolve(path)}
			frag, err := s.Extractor.ExtractPage(gctx, req)
			if err != nil {
				log.Error("pipeline.extract.page_failed", "page", req.PageIndex, "path", path, "error", err)
				return common.WrapError(err, "extract page "+req.PageIndex)
			}
			fragments[i] = frag
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	documentXML, err := xmlfmt.Normalize("<document>" + strings.Join(fragments, "\n") + "</document>")
	if err != nil {
		log.Error("pipeline.extract.normalize_failed", "pages", len(pages), "error", err)
		return "", common.WrapError(err, "normalize document")
	}

	log.Info("pipeline.extract.ok",
		"pages", len(pages),
		"workers", s.Workers,
		"xml_bytes", len(documentXML),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return documentXML, nil
}
