package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// CheckpointManager writes consistent point-in-time copies of the ledger
// next to the database file.
type CheckpointManager struct {
	db             *sql.DB
	now            func() time.Time
	checkpointsDir string
}

// CheckpointMetadata is stored beside each checkpoint as <tag>.meta.json.
type CheckpointMetadata struct {
	CreatedAt     time.Time      `json:"created_at"`
	RowCounts     map[string]int `json:"row_counts"`
	ID            string         `json:"id"`
	Description   string         `json:"description"`
	FileSize      int64          `json:"file_size"`
	SchemaVersion int            `json:"schema_version"`
}

// Checkpoint errors.
var (
	ErrCheckpointNotFound  = errors.New("checkpoint not found")
	ErrCheckpointCorrupted = errors.New("checkpoint integrity check failed")
	ErrCheckpointExists    = errors.New("checkpoint already exists")
)

// ledgerTables are counted into checkpoint metadata.
var ledgerTables = []string{
	"time_entries",
	"expenses",
	"recurring_rules",
	"invoices",
	"invoice_line_items",
	"sequence_counters",
}

// Checkpoints returns a manager writing into a checkpoints directory beside
// the database file.
func (s *SQLiteStorage) Checkpoints() (*CheckpointManager, error) {
	dir := filepath.Join(filepath.Dir(s.dbPath), "checkpoints")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}
	return &CheckpointManager{db: s.db, now: s.now, checkpointsDir: dir}, nil
}

// Dir returns the directory checkpoints are written to.
func (cm *CheckpointManager) Dir() string {
	return cm.checkpointsDir
}

func validateTag(tag string) error {
	if strings.ContainsAny(tag, `/\`) || strings.Contains(tag, "..") {
		return fmt.Errorf("invalid checkpoint tag %q: cannot contain path separators", tag)
	}
	return nil
}

// Create writes a checkpoint named tag. An empty tag gets a timestamp name.
// The copy is taken with VACUUM INTO, which reads one consistent snapshot
// while other sessions keep writing.
func (cm *CheckpointManager) Create(ctx context.Context, tag, description string) (*CheckpointMetadata, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	now := cm.now()
	if tag == "" {
		tag = "checkpoint-" + now.Format("2006-01-02-150405")
	}
	if err := validateTag(tag); err != nil {
		return nil, err
	}

	path := filepath.Join(cm.checkpointsDir, tag+".db")
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrCheckpointExists, tag)
	}

	var schemaVersion int
	if err := cm.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&schemaVersion); err != nil {
		return nil, fmt.Errorf("failed to get schema version: %w", err)
	}

	counts, err := cm.collectRowCounts(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := cm.db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return nil, fmt.Errorf("failed to write checkpoint: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat checkpoint: %w", err)
	}

	metadata := CheckpointMetadata{
		ID:            tag,
		CreatedAt:     now,
		Description:   description,
		FileSize:      info.Size(),
		RowCounts:     counts,
		SchemaVersion: schemaVersion,
	}
	if err := cm.saveMetadata(metadata); err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			slog.Error("failed to remove checkpoint after metadata save failure", "error", rmErr)
		}
		return nil, fmt.Errorf("failed to save metadata: %w", err)
	}

	slog.Info("created checkpoint", "id", tag, "size", metadata.FileSize)
	return &metadata, nil
}

// List returns every checkpoint, newest first. Unreadable metadata files are
// skipped.
func (cm *CheckpointManager) List() ([]CheckpointMetadata, error) {
	entries, err := os.ReadDir(cm.checkpointsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoints directory: %w", err)
	}

	var checkpoints []CheckpointMetadata
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".meta.json") {
			continue
		}
		metadata, err := cm.loadMetadata(strings.TrimSuffix(entry.Name(), ".meta.json"))
		if err != nil {
			slog.Warn("skipping unreadable checkpoint metadata", "file", entry.Name(), "error", err)
			continue
		}
		checkpoints = append(checkpoints, *metadata)
	}

	sort.Slice(checkpoints, func(i, j int) bool {
		return checkpoints[i].CreatedAt.After(checkpoints[j].CreatedAt)
	})
	return checkpoints, nil
}

// Verify runs SQLite's integrity check against a checkpoint file.
func (cm *CheckpointManager) Verify(ctx context.Context, tag string) error {
	if err := validateTag(tag); err != nil {
		return err
	}
	path := filepath.Join(cm.checkpointsDir, tag+".db")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrCheckpointNotFound, tag)
		}
		return fmt.Errorf("failed to access checkpoint: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("failed to open checkpoint: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("failed to close checkpoint", "error", err)
		}
	}()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("%w: %w", ErrCheckpointCorrupted, err)
	}
	if result != "ok" {
		return fmt.Errorf("%w: %s", ErrCheckpointCorrupted, result)
	}
	return nil
}

// Delete removes a checkpoint and its metadata.
func (cm *CheckpointManager) Delete(tag string) error {
	if err := validateTag(tag); err != nil {
		return err
	}
	path := filepath.Join(cm.checkpointsDir, tag+".db")
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrCheckpointNotFound, tag)
		}
		return fmt.Errorf("failed to remove checkpoint: %w", err)
	}
	if err := os.Remove(cm.metadataPath(tag)); err != nil && !os.IsNotExist(err) {
		slog.Debug("failed to remove checkpoint metadata", "error", err, "id", tag)
	}
	return nil
}

func (cm *CheckpointManager) collectRowCounts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int, len(ledgerTables))
	for _, table := range ledgerTables {
		var count int
		// #nosec G201 - table names come from ledgerTables
		if err := cm.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table] = count
	}
	return counts, nil
}

func (cm *CheckpointManager) metadataPath(tag string) string {
	return filepath.Join(cm.checkpointsDir, tag+".meta.json")
}

func (cm *CheckpointManager) saveMetadata(metadata CheckpointMetadata) error {
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return err
	}
	path := cm.metadataPath(metadata.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (cm *CheckpointManager) loadMetadata(tag string) (*CheckpointMetadata, error) {
	// #nosec G304 - tag is a file name read from the checkpoints directory
	data, err := os.ReadFile(cm.metadataPath(tag))
	if err != nil {
		return nil, err
	}
	var metadata CheckpointMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, err
	}
	return &metadata, nil
}
