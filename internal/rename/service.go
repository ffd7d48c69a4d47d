// Package rename changes the file name stored in a document record.
package rename

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/pagescribe/constants"
	"github.com/joseph-ayodele/pagescribe/internal/common"
	"github.com/joseph-ayodele/pagescribe/internal/entity"
	"github.com/joseph-ayodele/pagescribe/internal/sidecar"
)

// MaxNameLength bounds new file names, in runes.
const MaxNameLength = 200

// Service handles rename operations on JSON sidecars.
type Service struct {
	cache  *sidecar.Cache
	logger *slog.Logger
}

// NewService creates a new rename service
func NewService(cache *sidecar.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cache == nil {
		cache = sidecar.NewCache(logger)
	}
	return &Service{cache: cache, logger: logger}
}

// Rename loads the record at jsonPath and sets its file name to name.
// Renaming to the current name returns the record without writing anything.
func (s *Service) Rename(ctx context.Context, jsonPath, name string) (*entity.DocumentRecord, error) {
	rec, _, err := s.rename(ctx, jsonPath, name)
	return rec, err
}

// RenameFinished renames the record and, when <dir>/done/<old>.pdf exists,
// moves that assembled PDF to <dir>/done/<name>.pdf.
func (s *Service) RenameFinished(ctx context.Context, jsonPath, name string) (*entity.DocumentRecord, error) {
	rec, oldName, err := s.rename(ctx, jsonPath, name)
	if err != nil || oldName == rec.FileName {
		return rec, err
	}

	doneDir := filepath.Join(filepath.Dir(jsonPath), constants.DoneDirName)
	from := filepath.Join(doneDir, oldName+constants.PDFExt)
	to := filepath.Join(doneDir, rec.FileName+constants.PDFExt)

	if _, err := os.Stat(from); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Info("rename.finished.no_pdf", "path", from)
			return rec, nil
		}
		return rec, common.FilesystemError(fmt.Sprintf("stat %s", from), err)
	}
	if err := os.Rename(from, to); err != nil {
		s.logger.Error("rename.finished.move_failed", "from", from, "to", to, "error", err)
		return rec, common.FilesystemError("rename finished document", err)
	}
	s.logger.Info("rename.finished.ok", "from", from, "to", to)
	return rec, nil
}

func (s *Service) rename(ctx context.Context, jsonPath, name string) (*entity.DocumentRecord, string, error) {
	v := common.NewValidator().
		Field("json_path", jsonPath, common.Required).
		Field("name", name, common.Required, common.MaxLength(MaxNameLength), common.FileName)
	if err := common.ValidateAndReturnError(v); err != nil {
		s.logger.Warn("rename.invalid_input", "json_path", jsonPath, "name", name, "error", err)
		return nil, "", err
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	rec, err := s.cache.ReadRecord(jsonPath)
	if err != nil {
		return nil, "", err
	}
	oldName := rec.FileName
	if !rec.ApplyName(name) {
		s.logger.Info("rename.noop", "json_path", jsonPath, "file_name", name)
		return rec, oldName, nil
	}

	if err := s.cache.WriteRecord(jsonPath, rec); err != nil {
		return nil, "", err
	}
	s.logger.Info("rename.ok",
		"json_path", jsonPath,
		"from", oldName,
		"to", rec.FileName,
		"history", len(rec.FileNameHistory),
	)
	return rec, oldName, nil
}
