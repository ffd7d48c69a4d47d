package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joseph-ayodele/pagescribe/internal/assembly"
	"github.com/joseph-ayodele/pagescribe/internal/common"
	"github.com/joseph-ayodele/pagescribe/internal/export"
	"github.com/joseph-ayodele/pagescribe/internal/llm/anthropic"
	"github.com/joseph-ayodele/pagescribe/internal/pipeline"
	"github.com/joseph-ayodele/pagescribe/internal/rename"
	"github.com/joseph-ayodele/pagescribe/internal/sidecar"
)

const usage = `usage: pagescribe [-config file.yaml] <command> [flags]

commands:
  extract <page images...>                      transcribe and name a page set
  rename -json <sidecar> -name <new> [-finished] change the stored file name
  assemble -json <sidecar> [-source <pdf>]      build done/<name>.pdf
  export -dir <root> [-out <file.xlsx>]          write a catalog of all page sets
`

var errUsage = errors.New("usage")

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout io.Writer) int {
	global := flag.NewFlagSet("pagescribe", flag.ContinueOnError)
	global.SetOutput(io.Discard)
	configPath := global.String("config", "", "YAML configuration file")
	if err := global.Parse(args); err != nil || global.NArg() == 0 {
		printError("%s", usage)
		return 2
	}

	cfg, err := common.LoadConfigFile(*configPath)
	if err != nil {
		printError("Error: %v\n", err)
		return 1
	}

	// Setup logger
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "extract":
		err = runExtract(ctx, cfg, logger, rest, stdout)
	case "rename":
		err = runRename(ctx, cfg, logger, rest, stdout)
	case "assemble":
		err = runAssemble(ctx, cfg, logger, rest, stdout)
	case "export":
		err = runExport(ctx, logger, rest, stdout)
	default:
		printError("unknown command %q\n%s", cmd, usage)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		printError("%s", usage)
		return 2
	default:
		logger.Error("command failed", "command", cmd, "kind", string(common.KindOf(err)), "error", err)
		printError("Error: %v\n", err)
		return 1
	}
}

func runExtract(ctx context.Context, cfg *common.Config, logger *slog.Logger, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil || fs.NArg() == 0 {
		return errUsage
	}
	if err := cfg.Validate(true); err != nil {
		return err
	}

	client, err := anthropic.NewClient(anthropic.ConfigFrom(cfg.LLM, cfg.Pipeline), logger)
	if err != nil {
		return err
	}
	cache := sidecar.NewCache(logger)
	proc := pipeline.NewProcessor(logger, cache,
		pipeline.NewExtractStage(client, cfg.Pipeline.Workers, logger),
		pipeline.NewNamingStage(client, cache, logger),
	)

	rec, err := proc.Process(ctx, fs.Args())
	if err != nil {
		return err
	}
	return printJSON(stdout, rec)
}

func runRename(ctx context.Context, cfg *common.Config, logger *slog.Logger, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("rename", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	jsonPath := fs.String("json", "", "JSON sidecar of the document")
	name := fs.String("name", "", "new file name, without extension")
	finished := fs.Bool("finished", false, "also rename done/<old>.pdf")
	if err := fs.Parse(args); err != nil || *jsonPath == "" || fs.NArg() > 0 {
		return errUsage
	}
	if err := cfg.Validate(false); err != nil {
		return err
	}

	svc := rename.NewService(sidecar.NewCache(logger), logger)
	renameFn := svc.Rename
	if *finished {
		renameFn = svc.RenameFinished
	}
	rec, err := renameFn(ctx, *jsonPath, *name)
	if err != nil {
		return err
	}
	return printJSON(stdout, rec)
}

func runAssemble(ctx context.Context, cfg *common.Config, logger *slog.Logger, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("assemble", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	jsonPath := fs.String("json", "", "JSON sidecar of the document")
	source := fs.String("source", "", "source PDF (default: <dir without -data>.pdf)")
	if err := fs.Parse(args); err != nil || *jsonPath == "" || fs.NArg() > 0 {
		return errUsage
	}
	if err := cfg.Validate(false); err != nil {
		return err
	}

	orch := assembly.NewOrchestrator(
		assembly.ConfigFrom(cfg.Assembly),
		assembly.NewExecRunner(logger),
		assembly.PDFCPUCounter{},
		sidecar.NewCache(logger),
		logger,
	)
	out, err := orch.AssembleFile(ctx, *jsonPath, *source)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, out)
	return err
}

func runExport(ctx context.Context, logger *slog.Logger, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	dir := fs.String("dir", "", "root directory to scan")
	out := fs.String("out", "", "output XLSX path (default: <dir>/documents.xlsx)")
	if err := fs.Parse(args); err != nil || *dir == "" || fs.NArg() > 0 {
		return errUsage
	}
	if *out == "" {
		*out = filepath.Join(*dir, "documents.xlsx")
	}

	data, err := export.NewService(sidecar.NewCache(logger), logger).ExportXLSX(ctx, *dir)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		return common.FilesystemError(fmt.Sprintf("write %s", *out), err)
	}
	_, err = fmt.Fprintln(stdout, *out)
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
