package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Backup writes a consistent point-in-time copy of the database to
// destPath and verifies it. VACUUM INTO handles WAL mode correctly, so the
// service can keep serving while the copy is taken.
func (s *EventStore) Backup(ctx context.Context, destPath string) error {
	if destPath == "" {
		return fmt.Errorf("sqlite: backup path is required")
	}
	if _, err := os.Stat(destPath); err == nil {
		return fmt.Errorf("sqlite: backup target %s already exists", destPath)
	}

	quoted := strings.ReplaceAll(destPath, "'", "''")
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", quoted)); err != nil {
		return fmt.Errorf("sqlite: failed to backup database: %w", err)
	}

	if err := VerifyBackup(ctx, destPath); err != nil {
		return err
	}
	s.logger.Info("sqlite: backup written", "path", destPath)
	return nil
}

// VerifyBackup opens a backup read-only and runs SQLite's integrity check.
func VerifyBackup(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return fmt.Errorf("sqlite: failed to open backup: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("sqlite: failed to run integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("sqlite: integrity check failed: %s", result)
	}
	return nil
}

// BackupFile describes a backup found on disk.
type BackupFile struct {
	Path    string
	ModTime time.Time
	Size    int64
}

// ListBackups returns the .db files in dir, newest first.
func ListBackups(dir string) ([]BackupFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to read backup directory: %w", err)
	}

	var backups []BackupFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".db") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, BackupFile{
			Path:    filepath.Join(dir, entry.Name()),
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].ModTime.After(backups[j].ModTime)
	})
	return backups, nil
}

// PruneBackups deletes all but the newest keep backups in dir and returns
// the removed paths. keep <= 0 keeps everything. Deletion continues past
// individual failures.
func PruneBackups(dir string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	backups, err := ListBackups(dir)
	if err != nil {
		return nil, err
	}
	if len(backups) <= keep {
		return nil, nil
	}

	var removed []string
	var errs []error
	for _, b := range backups[keep:] {
		if err := os.Remove(b.Path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, b.Path)
	}
	if len(errs) > 0 {
		return removed, fmt.Errorf("sqlite: failed to delete some backups: %w", errors.Join(errs...))
	}
	return removed, nil
}
