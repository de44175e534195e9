package events

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/embedids/internal/errors"
	"codeberg.org/mutker/embedids/internal/logger"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Repository is a Recorder backed by sqlite. Events are buffered and
// written in one transaction when the batch fills or the timeout fires.
type Repository struct {
	db            *sql.DB
	logger        logger.Logger
	cfg           Config
	mu            sync.Mutex
	buffer        []*Event
	dropped       int
	closed        bool
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
}

// New returns a sqlite Repository, or a no-op Recorder when events are
// disabled.
func New(cfg Config, log logger.Logger) (Recorder, error) {
	if !cfg.Enabled {
		return NewNop(), nil
	}
	return NewRepository(cfg, log)
}

func NewRepository(cfg Config, log logger.Logger) (*Repository, error) {
	errFactory := errors.New()

	if log == nil {
		log = logger.With("events")
	}

	cfg.Enabled = true
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	if err := ValidateAndUpdateSchema(db, cfg.backupDir(), log); err != nil {
		db.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Dur("batch_timeout", cfg.BatchTimeout).
		Int("max_buffered", cfg.maxBuffered()).
		Msg("Event journal initialized")

	repo := &Repository{
		db:            db,
		logger:        log,
		cfg:           cfg,
		buffer:        make([]*Event, 0, cfg.BatchSize),
		flushTicker:   time.NewTicker(cfg.BatchTimeout),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	go repo.flusher()

	return repo, nil
}

// Record buffers event and flushes when the batch is full. While flushes
// fail the buffer is capped at the configured maximum; the oldest events
// are discarded and Record reports ErrBufferFull.
func (r *Repository) Record(ctx context.Context, event *Event) error {
	if event == nil {
		return errors.New().WithData(errors.ErrInvalidArgument, "nil event")
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errors.New().New(ErrStorageClosed)
	}

	r.buffer = append(r.buffer, event)

	if len(r.buffer) < r.cfg.BatchSize {
		return nil
	}

	err := r.flush(ctx)
	if err == nil {
		return nil
	}

	if dropped := r.trim(); dropped > 0 {
		return errors.New().Wrap(ErrBufferFull, err).WithData(struct {
			Dropped int
			Total   int
		}{
			Dropped: dropped,
			Total:   r.dropped,
		})
	}

	return err
}

// trim discards the oldest events beyond the buffer limit and returns how
// many were dropped. r.mu must be held.
func (r *Repository) trim() int {
	excess := len(r.buffer) - r.cfg.maxBuffered()
	if excess <= 0 {
		return 0
	}

	n := copy(r.buffer, r.buffer[excess:])
	clear(r.buffer[n:])
	r.buffer = r.buffer[:n]
	r.dropped += excess

	r.logger.Warn().
		Int("dropped", excess).
		Int("dropped_total", r.dropped).
		Int("buffered", n).
		Msg("Event buffer full, discarding oldest events")

	return excess
}

// Buffered returns the number of events waiting to be flushed.
func (r *Repository) Buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffer)
}

// Dropped returns the number of events discarded because the buffer was
// full.
func (r *Repository) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Flush writes buffered events immediately.
func (r *Repository) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flush(ctx)
}

// Recent returns up to limit events, newest first. Buffered events are
// not included until flushed.
func (r *Repository) Recent(ctx context.Context, limit int) ([]Event, error) {
	errFactory := errors.New()

	rows, err := r.db.QueryContext(ctx, recentEventsSQL, limit)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageQuery, err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e    Event
			id   string
			ts   int64
			code string
		)
		if err := rows.Scan(&id, &ts, &e.Metric, &e.Kind, &e.Value, &code, &e.Trend); err != nil {
			return nil, errFactory.Wrap(ErrStorageQuery, err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, errFactory.Wrap(ErrStorageQuery, err)
		}
		e.Timestamp = time.UnixMilli(ts)
		e.Code = errors.ErrorCode(code)
		out = append(out, e)
	}

	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageQuery, err)
	}

	return out, nil
}

// CountByMetric returns the number of journaled events per metric.
func (r *Repository) CountByMetric(ctx context.Context) (map[string]int, error) {
	errFactory := errors.New()

	rows, err := r.db.QueryContext(ctx, countByMetricSQL)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageQuery, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			name string
			n    int
		)
		if err := rows.Scan(&name, &n); err != nil {
			return nil, errFactory.Wrap(ErrStorageQuery, err)
		}
		counts[name] = n
	}

	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageQuery, err)
	}

	return counts, nil
}

func (r *Repository) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	close(r.shutdownChan)
	r.flushTicker.Stop()

	// The flusher writes whatever is left before it exits
	<-r.flushDoneChan

	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "checkpoint_wal",
			Error: err.Error(),
		})
	}

	if err := r.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	r.logger.Info().Msg("Event journal closed")

	return nil
}

func (r *Repository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			r.mu.Lock()
			if err := r.flush(context.Background()); err != nil {
				r.logger.Warn().Err(err).Msg("Periodic flush failed")
			}
			r.mu.Unlock()
		case <-r.shutdownChan:
			r.mu.Lock()
			if err := r.flush(context.Background()); err != nil {
				r.logger.Warn().Err(err).Msg("Final flush failed")
			}
			r.mu.Unlock()
			return
		}
	}
}

// flush must be called with r.mu held.
func (r *Repository) flush(ctx context.Context) error {
	if len(r.buffer) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	stmt, err := tx.PrepareContext(ctx, insertEventSQL)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Error().Err(rbErr).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	for _, e := range r.buffer {
		if _, err := stmt.ExecContext(ctx,
			e.ID.String(),
			e.Timestamp.UnixMilli(),
			e.Metric,
			e.Kind,
			e.Value,
			string(e.Code),
			e.Trend,
		); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.logger.Error().Err(rbErr).Msg("Failed to roll back transaction")
			}
			return errFactory.Wrap(ErrTransactionFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	r.logger.Debug().Int("records", len(r.buffer)).Msg("Flushed events to database")
	r.buffer = r.buffer[:0]

	return nil
}
