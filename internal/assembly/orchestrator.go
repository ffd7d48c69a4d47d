// Package assembly builds the final named, searchable PDF for a document record
// by driving qpdf and ocrmypdf.
package assembly

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/pagescribe/constants"
	"github.com/joseph-ayodele/pagescribe/internal/common"
	"github.com/joseph-ayodele/pagescribe/internal/entity"
	"github.com/joseph-ayodele/pagescribe/internal/sidecar"
)

// Config names the external utilities and the OCR language.
type Config struct {
	QPDF        string
	OCRmyPDF    string
	OCRLanguage string
}

// ConfigFrom maps the application configuration onto the orchestrator configuration.
func ConfigFrom(c common.AssemblyConfig) Config {
	return Config{QPDF: c.QPDF, OCRmyPDF: c.OCRmyPDF, OCRLanguage: c.OCRLanguage}
}

// Orchestrator runs page selection then OCR for one record.
type Orchestrator struct {
	Cfg      Config
	Runner   Runner
	Counter  PageCounter // nil skips the page range check
	Resolver SourceResolver
	Cache    *sidecar.Cache
	Logger   *slog.Logger
}

func NewOrchestrator(cfg Config, runner Runner, counter PageCounter, cache *sidecar.Cache, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	def := common.DefaultConfig().Assembly
	if cfg.QPDF == "" {
		cfg.QPDF = def.QPDF
	}
	if cfg.OCRmyPDF == "" {
		cfg.OCRmyPDF = def.OCRmyPDF
	}
	if cfg.OCRLanguage == "" {
		cfg.OCRLanguage = def.OCRLanguage
	}
	if runner == nil {
		runner = NewExecRunner(logger)
	}
	if cache == nil {
		cache = sidecar.NewCache(logger)
	}
	return &Orchestrator{
		Cfg:      cfg,
		Runner:   runner,
		Counter:  counter,
		Resolver: DataDirResolver{},
		Cache:    cache,
		Logger:   logger,
	}
}

// AssembleFile loads the record at jsonPath and assembles it.
func (o *Orchestrator) AssembleFile(ctx context.Context, jsonPath, sourcePDF string) (string, error) {
	rec, err := o.Cache.ReadRecord(jsonPath)
	if err != nil {
		return "", err
	}
	return o.Assemble(ctx, rec, sourcePDF)
}

// Assemble writes <dir>/done/<file_name>.pdf from the pages of sourcePDF listed
// in rec and returns its path. An empty sourcePDF is resolved from the record's
// directory. Checks run before any previous output is removed.
func (o *Orchestrator) Assemble(ctx context.Context, rec *entity.DocumentRecord, sourcePDF string) (string, error) {
	start := time.Now()

	v := common.NewValidator().
		Field("json_file_path", rec.JSONFilePath, common.Required).
		Field("file_name", rec.FileName, common.Required, common.FileName).
		Field("pages_paths", rec.PagesPaths, common.Required)
	if err := common.ValidateAndReturnError(v); err != nil {
		return "", err
	}

	dataDir := filepath.Dir(rec.JSONFilePath)
	if sourcePDF == "" {
		sourcePDF = o.Resolver.SourcePDF(dataDir)
	}
	log := o.Logger.With("file_name", rec.FileName, "source", sourcePDF)

	if _, err := os.Stat(sourcePDF); err != nil {
		log.Error("assembly.source_missing", "error", err)
		return "", common.FilesystemError(fmt.Sprintf("source pdf %s", sourcePDF), err)
	}

	pageCount := 0
	if o.Counter != nil {
		n, err := o.Counter.PageCount(sourcePDF)
		if err != nil {
			log.Error("assembly.page_count_failed", "error", err)
			return "", common.FormatError("read source pdf", err)
		}
		pageCount = n
	}
	selection, err := PageSelection(rec.PagesPaths, pageCount)
	if err != nil {
		log.Error("assembly.bad_pages", "error", err)
		return "", err
	}

	doneDir := filepath.Join(dataDir, constants.DoneDirName)
	if err := os.MkdirAll(doneDir, 0o755); err != nil {
		return "", common.FilesystemError("create done directory", err)
	}
	out := filepath.Join(doneDir, rec.FileName+constants.PDFExt)
	if err := os.Remove(out); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", common.FilesystemError(fmt.Sprintf("remove previous output %s", out), err)
	}

	log.Info("assembly.start", "pages", selection, "source_pages", pageCount, "output", out)

	qpdfArgs := []string{"--empty", "--pages", sourcePDF, selection, "--", out}
	if err := o.run(ctx, "qpdf", o.Cfg.QPDF, qpdfArgs); err != nil {
		return "", err
	}

	ocrArgs := []string{
		"--force-ocr",
		"--pdf-renderer", "hocr",
		"--color-conversion-strategy", "UseDeviceIndependentColor",
		"-l", o.Cfg.OCRLanguage,
		"--clean",
		"--output-type", "pdfa-2",
		out, out,
	}
	if err := o.run(ctx, "ocrmypdf", o.Cfg.OCRmyPDF, ocrArgs); err != nil {
		return "", err
	}

	log.Info("assembly.ok", "output", out, "elapsed_ms", time.Since(start).Milliseconds())
	return out, nil
}

// run executes one utility; anything but a zero exit code is a failure.
func (o *Orchestrator) run(ctx context.Context, tool, bin string, args []string) error {
	start := time.Now()
	lineEvent := "assembly." + tool + ".line"
	res, err := o.Runner.Run(ctx, bin, args, func(stream Stream, line string) {
		o.Logger.Info(lineEvent, "stream", string(stream), "line", line)
	})
	if res.Signal != "" {
		o.Logger.Warn("assembly."+tool+".signal", "signal", res.Signal)
	}
	if err != nil {
		o.Logger.Error("assembly."+tool+".failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return common.SubprocessError(common.ErrProcessFailed.Error(), fmt.Errorf("%s: %w: %w", tool, common.ErrProcessFailed, err))
	}
	o.Logger.Info("assembly."+tool+".exited",
		"exit_code", res.ExitCode,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	if !res.Success() {
		return common.SubprocessError(common.ErrProcessFailed.Error(),
			fmt.Errorf("%s exited with code %d: %w", tool, res.ExitCode, common.ErrProcessFailed))
	}
	return nil
}
