package events

import (
	"path/filepath"
	"time"

	"codeberg.org/mutker/embedids/internal/errors"
)

const (
	defaultDirPerm      = 0o755
	defaultDBPath       = "/var/lib/embedids/events.db"
	defaultBatchSize    = 32
	defaultBatchTimeout = 10 * time.Second

	// Buffered events allowed per batch while the database is unwritable
	bufferedBatches = 4
)

type Config struct {
	Enabled      bool
	DBPath       string
	BackupDir    string
	BatchSize    int
	BatchTimeout time.Duration
	// MaxBuffered bounds unflushed events; zero means four batches.
	MaxBuffered int
}

func DefaultConfig() Config {
	return Config{
		DBPath:       defaultDBPath,
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if !c.Enabled {
		return nil
	}
	if c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BatchSize <= 0 || c.BatchTimeout <= 0 {
		return errFactory.WithData(ErrInvalidConfig, "batch size and timeout must be positive")
	}
	if c.MaxBuffered < 0 || (c.MaxBuffered > 0 && c.MaxBuffered < c.BatchSize) {
		return errFactory.WithData(ErrInvalidConfig, "max buffered must hold at least one batch")
	}
	return nil
}

func (c Config) backupDir() string {
	if c.BackupDir != "" {
		return c.BackupDir
	}
	return filepath.Join(filepath.Dir(c.DBPath), "backups")
}

func (c Config) maxBuffered() int {
	if c.MaxBuffered > 0 {
		return c.MaxBuffered
	}
	return c.BatchSize * bufferedBatches
}
