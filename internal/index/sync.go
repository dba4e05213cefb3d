package index

import (
	"log/slog"

	"github.com/starford/decisionrecords/internal/models"
	"github.com/starford/decisionrecords/internal/parser"
	"github.com/starford/decisionrecords/internal/storage"
)

// Sync walks the record directory and brings the index up to date:
//   - new/changed records are parsed and upserted
//   - records removed from disk are deleted from the index
func Sync(db *DB, store storage.Provider, phrases *parser.Phrases, logger *slog.Logger) error {
	metas, err := store.List()
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		if parser.RecordID(m.Name) == 0 {
			continue
		}
		disk[m.Name] = struct{}{}

		if checksums[m.Name] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Name)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Name), slog.String("error", err.Error()))
			continue
		}
		if err := indexFile(db, phrases, m, data); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Name), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", m.Name))
		}
	}

	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteRecord(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// indexFile parses data and upserts it into the DB.
func indexFile(db *DB, phrases *parser.Phrases, m models.RecordMetadata, data []byte) error {
	format, _ := models.FormatOf(m.Name)
	res, err := parser.Parse(data, format, phrases)
	if err != nil {
		return err
	}
	id := parser.RecordID(m.Name)
	status := res.StatusWord
	if res.Status != models.StatusOther {
		status = res.Status.String()
	}
	for i := range res.Links {
		res.Links[i].Source = id
	}
	row := RecordRow{
		Path:      m.Name,
		ID:        id,
		Title:     res.Title,
		Status:    status,
		HasBlock:  res.HasBlock,
		Checksum:  storage.Checksum(data),
		UpdatedAt: m.UpdatedAt,
	}
	return db.UpsertRecord(row, string(data), res.Links)
}
