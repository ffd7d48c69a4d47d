package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/pagescribe/internal/common"
	"github.com/joseph-ayodele/pagescribe/internal/entity"
	"github.com/joseph-ayodele/pagescribe/internal/llm"
	"github.com/joseph-ayodele/pagescribe/internal/sidecar"
)

// NamingStage asks the model for a file name and persists the resulting record.
type NamingStage struct {
	Namer  llm.Namer
	Cache  *sidecar.Cache
	Logger *slog.Logger
}

func NewNamingStage(namer llm.Namer, cache *sidecar.Cache, logger *slog.Logger) *NamingStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &NamingStage{Namer: namer, Cache: cache, Logger: logger}
}

// Run names the document described by documentXML and writes <stem>.json.
// Nothing is written when the model answer cannot be decoded.
func (s *NamingStage) Run(ctx context.Context, paths sidecar.Paths, pages []string, documentXML string) (*entity.DocumentRecord, error) {
	start := time.Now()
	log := s.Logger.With("run_id", common.RequestIDFromContext(ctx))

	answer, err := s.Namer.NameDocument(ctx, documentXML)
	if err != nil {
		log.Error("pipeline.naming.request_failed", "stem", paths.Stem, "error", err)
		return nil, common.WrapError(err, "name document")
	}

	rec, err := entity.RecordFromEnvelope(entity.Envelope(paths.JSON, pages, answer))
	if err != nil {
		log.Error("pipeline.naming.decode_failed", "stem", paths.Stem, "error", err, "answer", answer)
		return nil, common.WrapError(err, "decode naming answer")
	}
	rec.JSONFilePath = paths.JSON
	rec.PagesPaths = append([]string(nil), pages...)

	if err := s.Cache.WriteRecord(paths.JSON, rec); err != nil {
		return nil, err
	}

	log.Info("pipeline.naming.ok",
		"stem", paths.Stem,
		"file_name", rec.FileName,
		"extra_fields", len(rec.Extra),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return rec, nil
}
