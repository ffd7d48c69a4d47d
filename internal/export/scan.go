package export

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/pagescribe/constants"
	"github.com/joseph-ayodele/pagescribe/internal/common"
	"github.com/joseph-ayodele/pagescribe/internal/entity"
	"github.com/joseph-ayodele/pagescribe/internal/sidecar"
)

// Entry is one page set found on disk.
type Entry struct {
	Dir      string
	Stem     string
	Status   constants.DocumentStatus
	Record   *entity.DocumentRecord // nil until the JSON sidecar exists
	Finished string                 // path of done/<file_name>.pdf when it exists
}

type ScanStats struct {
	Scanned uint32
	Images  uint32
	Records uint32
	Invalid uint32
}

// Scan walks root and reports every page set that has at least one sidecar.
// Unreadable or invalid records are counted and skipped. Finished-PDF
// directories and hidden entries are not descended into.
func (s *Service) Scan(ctx context.Context, root string) ([]Entry, ScanStats, error) {
	var (
		entries []Entry
		stats   ScanStats
	)
	if strings.TrimSpace(root) == "" {
		return nil, stats, common.ConfigError("export root is required", common.ErrInvalidInput)
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			s.logger.Warn("export.scan.walk_error", "path", path, "error", walkErr)
			return nil
		}
		if path != root && isHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if d.Name() == constants.DoneDirName {
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()
		ext := filepath.Ext(name)
		if constants.IsPageImageExt(ext) {
			stats.Images++
			return nil
		}
		if !strings.HasPrefix(name, constants.StemPrefix) {
			return nil
		}
		dir := filepath.Dir(path)
		stem := strings.TrimSuffix(name, ext)
		paths := sidecar.NewPaths(dir, stem)

		switch strings.ToLower(ext) {
		case constants.JSONExt:
			rec, err := s.cache.ReadRecord(path)
			if err != nil {
				stats.Invalid++
				s.logger.Warn("export.scan.invalid_record", "path", path, "error", err)
				return nil
			}
			stats.Records++
			e := Entry{Dir: dir, Stem: stem, Status: constants.DocumentStatusNamed, Record: rec}
			finished := filepath.Join(dir, constants.DoneDirName, rec.FileName+constants.PDFExt)
			if _, err := os.Stat(finished); err == nil {
				e.Status = constants.DocumentStatusAssembled
				e.Finished = finished
			}
			entries = append(entries, e)
		case constants.XMLExt:
			if _, err := os.Stat(paths.JSON); err == nil {
				return nil
			}
			entries = append(entries, Entry{Dir: dir, Stem: stem, Status: constants.DocumentStatusExtracted})
		}
		return nil
	})
	if err != nil {
		return nil, stats, fmt.Errorf("walk %s: %w", root, err)
	}

	s.logger.Info("export.scan.ok",
		"root", root,
		"entries", len(entries),
		"records", stats.Records,
		"invalid", stats.Invalid,
		"images", stats.Images,
	)
	return entries, stats, nil
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
