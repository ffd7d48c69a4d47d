// Package pipeline turns an ordered set of page images into a named document record.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/pagescribe/internal/common"
	"github.com/joseph-ayodele/pagescribe/internal/entity"
	"github.com/joseph-ayodele/pagescribe/internal/sidecar"
)

// Processor coordinates page extraction then naming, using the sidecars as a cache.
type Processor struct {
	Logger  *slog.Logger
	Cache   *sidecar.Cache
	Extract *ExtractStage
	Naming  *NamingStage
}

func NewProcessor(logger *slog.Logger, cache *sidecar.Cache, extract *ExtractStage, naming *NamingStage) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{Logger: logger, Cache: cache, Extract: extract, Naming: naming}
}

// Process returns the record for pages. With both sidecars present it makes
// no provider calls; with only the XML present it skips extraction and runs
// naming; otherwise it runs both stages.
func (p *Processor) Process(ctx context.Context, pages []string) (*entity.DocumentRecord, error) {
	start := time.Now()
	paths, err := sidecar.PathsFor(pages)
	if err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	ctx = common.WithRequestID(common.WithStem(ctx, paths.Stem), runID)
	log := p.Logger.With("run_id", runID, "stem", paths.Stem)

	state, err := p.Cache.State(paths)
	if err != nil {
		return nil, err
	}
	log.Info("pipeline.start", "pages", len(pages), "cache", state.String())

	var documentXML string
	switch state {
	case sidecar.StateComplete:
		rec, err := p.Cache.ReadRecord(paths.JSON)
		if err != nil {
			log.Error("pipeline.cache.read_failed", "path", paths.JSON, "error", err)
			return nil, err
		}
		log.Info("pipeline.cache.hit", "file_name", rec.FileName, "elapsed_ms", time.Since(start).Milliseconds())
		return rec, nil

	case sidecar.StateXMLOnly:
		documentXML, err = p.Cache.ReadXML(paths)
		if err != nil {
			return nil, err
		}
		log.Info("pipeline.cache.xml_reused", "path", paths.XML)

	default:
		documentXML, err = p.Extract.Run(ctx, pages)
		if err != nil {
			log.Error("pipeline.extract.failed", "error", err)
			return nil, err
		}
		if err := p.Cache.WriteXML(paths, documentXML); err != nil {
			return nil, err
		}
	}

	rec, err := p.Naming.Run(ctx, paths, pages, documentXML)
	if err != nil {
		log.Error("pipeline.naming.failed", "error", err)
		return nil, err
	}
	log.Info("pipeline.ok", "file_name", rec.FileName, "elapsed_ms", time.Since(start).Milliseconds())
	return rec, nil
}
