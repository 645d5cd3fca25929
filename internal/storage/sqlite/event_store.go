// Package sqlite provides the default SQLite implementation of the storage
// interfaces, built on the CGO-free modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/agentmemory/internal/storage"
	"github.com/scrypster/agentmemory/pkg/types"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// EventStore implements storage.Store using SQLite.
type EventStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ storage.Store = (*EventStore)(nil)

// Option configures an EventStore.
type Option func(*EventStore)

// WithLogger sets the logger used for recovery and migration messages.
func WithLogger(logger *slog.Logger) Option {
	return func(s *EventStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewEventStore opens the database at dsn and applies pending migrations.
// If the initial open fails because a crashed process left stale WAL files
// behind, it verifies no other process holds them and retries once after
// removing them.
func NewEventStore(dsn string, opts ...Option) (*EventStore, error) {
	base := &EventStore{logger: slog.Default()}
	for _, opt := range opts {
		opt(base)
	}
	logger := base.logger

	store, err := openEventStore(dsn, logger)
	if err == nil {
		return store, nil
	}

	if !isRecoverableWALError(err) {
		return nil, err
	}

	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || !isWALStale(dbPath) {
		return nil, err
	}

	removeStaleWAL(dbPath, logger)

	store, retryErr := openEventStore(dsn, logger)
	if retryErr != nil {
		return nil, fmt.Errorf("sqlite: failed after WAL recovery: %w (original: %v)", retryErr, err)
	}

	logger.Warn("sqlite: recovered from stale WAL files", "path", dbPath)
	return store, nil
}

func openEventStore(dsn string, logger *slog.Logger) (*EventStore, error) {
	db, err := sql.Open("sqlite", withTimeFormat(dsn))
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite supports one writer. A single connection serialises writes
	// and transactions, so a conditional UPDATE can never race another.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}

	store := &EventStore{db: db, logger: logger}
	if _, err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Migrate applies any pending embedded migrations and returns how many ran.
func (s *EventStore) Migrate(ctx context.Context) (int, error) {
	mgr, err := storage.NewMigrationManager(s.db, migrationFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to create migration manager: %w", err)
	}
	n, err := mgr.Up(ctx)
	if err != nil {
		return n, fmt.Errorf("sqlite: failed to run migrations: %w", err)
	}
	if n > 0 {
		s.logger.Info("sqlite: applied migrations", "count", n)
	}
	return n, nil
}

// SchemaVersion returns the highest applied migration version.
func (s *EventStore) SchemaVersion(ctx context.Context) (uint, error) {
	mgr, err := storage.NewMigrationManager(s.db, migrationFS, "migrations")
	if err != nil {
		return 0, err
	}
	return mgr.Version(ctx)
}

// Ping verifies the database is reachable.
func (s *EventStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *EventStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

const eventColumns = `
	id, agent_type, event_type, session_id, summary,
	context_data, key_findings, related_entities,
	model_used, tokens_used, confidence_score,
	status, resolved_at, resolution_note, annotations,
	created_at, updated_at`

// Insert appends a new event.
func (s *EventStore) Insert(ctx context.Context, evt *types.MemoryEvent) error {
	if evt == nil {
		return storage.ErrInvalidInput
	}
	if evt.ID == "" {
		return fmt.Errorf("%w: event ID is required", storage.ErrInvalidInput)
	}
	if strings.TrimSpace(evt.Summary) == "" {
		return fmt.Errorf("%w: event summary is required", storage.ErrInvalidInput)
	}

	contextJSON, err := marshalMap(evt.ContextData)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal context_data: %w", err)
	}
	findingsJSON, err := marshalMap(evt.KeyFindings)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal key_findings: %w", err)
	}
	relatedJSON, err := json.Marshal(evt.RelatedEntities)
	if err != nil {
		return fmt.Errorf("sqlite: failed to marshal related_entities: %w", err)
	}
	annotationsJSON, err := marshalAnnotations(evt.Annotations)
	if err != nil {
		return err
	}

	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now()
	}
	if evt.UpdatedAt.IsZero() {
		evt.UpdatedAt = evt.CreatedAt
	}

	query := `INSERT INTO memory_events (` + eventColumns + `,
		email_id, task_id, delegation_id
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		evt.ID,
		string(evt.AgentType),
		string(evt.EventType),
		nullableString(evt.SessionID),
		evt.Summary,
		contextJSON,
		findingsJSON,
		string(relatedJSON),
		nullableString(evt.ModelUsed),
		evt.TokensUsed,
		evt.ConfidenceScore,
		nullableString(string(evt.Status)),
		nullableTime(evt.ResolvedAt),
		nullableString(evt.ResolutionNote),
		annotationsJSON,
		evt.CreatedAt.UTC(),
		evt.UpdatedAt.UTC(),
		nullableString(evt.RelatedEntities.EmailID),
		nullableString(evt.RelatedEntities.TaskID),
		nullableString(evt.RelatedEntities.DelegationID),
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to insert event: %w", err)
	}
	return nil
}

// Get retrieves an event by ID.
func (s *EventStore) Get(ctx context.Context, id string) (*types.MemoryEvent, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: event ID is required", storage.ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM memory_events WHERE id = ?`, id)
	evt, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: event %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get event: %w", err)
	}
	return evt, nil
}

// Query returns events matching q.
func (s *EventStore) Query(ctx context.Context, q storage.EventQuery) ([]*types.MemoryEvent, error) {
	where, args := buildWhere(q)

	order := "DESC"
	if q.Ascending {
		order = "ASC"
	}

	query := `SELECT ` + eventColumns + ` FROM memory_events` + where +
		` ORDER BY created_at ` + order + `, rowid ` + order + ` LIMIT ?`
	args = append(args, q.EffectiveLimit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*types.MemoryEvent
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan event: %w", err)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: failed to iterate events: %w", err)
	}
	return events, nil
}

// Resolve transitions an event to resolved and appends annotation, in one
// transaction. The UPDATE is guarded by the current status so a second
// resolution of the same event affects no rows.
func (s *EventStore) Resolve(ctx context.Context, id string, annotation types.Annotation) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: event ID is required", storage.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var status, annotationsJSON sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT status, annotations FROM memory_events WHERE id = ?`, id,
	).Scan(&status, &annotationsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%w: event %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: failed to read event status: %w", err)
	}
	if types.EventStatus(status.String) == types.StatusResolved {
		return false, nil
	}

	annotations, err := unmarshalAnnotations(annotationsJSON)
	if err != nil {
		return false, err
	}
	annotation = normalizeAnnotation(annotation, types.AnnotationResolved)
	encoded, err := marshalAnnotations(append(annotations, annotation))
	if err != nil {
		return false, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE memory_events
		SET status = ?, resolved_at = ?, resolution_note = ?, annotations = ?, updated_at = ?
		WHERE id = ? AND (status IS NULL OR status = '' OR status = ?)`,
		string(types.StatusResolved),
		annotation.Timestamp.UTC(),
		nullableString(annotation.Note),
		encoded,
		time.Now().UTC(),
		id,
		string(types.StatusActive),
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: failed to resolve event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: failed to get rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("sqlite: failed to commit resolution: %w", err)
	}
	return true, nil
}

// Annotate appends an annotation without touching the status.
func (s *EventStore) Annotate(ctx context.Context, id string, annotation types.Annotation) error {
	if id == "" {
		return fmt.Errorf("%w: event ID is required", storage.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var annotationsJSON sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT annotations FROM memory_events WHERE id = ?`, id).Scan(&annotationsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: event %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("sqlite: failed to read annotations: %w", err)
	}

	annotations, err := unmarshalAnnotations(annotationsJSON)
	if err != nil {
		return err
	}
	encoded, err := marshalAnnotations(append(annotations, normalizeAnnotation(annotation, types.AnnotationNote)))
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE memory_events SET annotations = ?, updated_at = ? WHERE id = ?`,
		encoded, time.Now().UTC(), id,
	); err != nil {
		return fmt.Errorf("sqlite: failed to annotate event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit annotation: %w", err)
	}
	return nil
}

// buildWhere renders q as a WHERE clause with positional arguments.
func buildWhere(q storage.EventQuery) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if !q.Since.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, q.Since.UTC())
	}
	if !q.Until.IsZero() {
		clauses = append(clauses, "created_at < ?")
		args = append(args, q.Until.UTC())
	}
	if q.AgentType != "" {
		clauses = append(clauses, "agent_type = ?")
		args = append(args, string(q.AgentType))
	}
	if len(q.EventTypes) > 0 {
		placeholders := make([]string, len(q.EventTypes))
		for i, et := range q.EventTypes {
			placeholders[i] = "?"
			args = append(args, string(et))
		}
		clauses = append(clauses, "event_type IN ("+strings.Join(placeholders, ", ")+")")
	}
	if !q.IncludeResolved {
		clauses = append(clauses, "(status IS NULL OR status != ?)")
		args = append(args, string(types.StatusResolved))
	}
	if q.SummaryContains != "" {
		clauses = append(clauses, `LOWER(summary) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.ToLower(q.SummaryContains))+"%")
	}
	if q.HasKey() {
		var keys []string
		if q.EmailID != "" {
			keys = append(keys, "email_id = ?")
			args = append(args, q.EmailID)
		}
		if q.TaskID != "" {
			keys = append(keys, "task_id = ?")
			args = append(args, q.TaskID)
		}
		if q.DelegationID != "" {
			keys = append(keys, "delegation_id = ?")
			args = append(args, q.DelegationID)
		}
		clauses = append(clauses, "("+strings.Join(keys, " OR ")+")")
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*types.MemoryEvent, error) {
	var evt types.MemoryEvent
	var agentType, eventType string
	var sessionID, contextJSON, findingsJSON, relatedJSON sql.NullString
	var modelUsed, status, resolutionNote, annotationsJSON sql.NullString
	var resolvedAt sql.NullTime

	err := row.Scan(
		&evt.ID,
		&agentType,
		&eventType,
		&sessionID,
		&evt.Summary,
		&contextJSON,
		&findingsJSON,
		&relatedJSON,
		&modelUsed,
		&evt.TokensUsed,
		&evt.ConfidenceScore,
		&status,
		&resolvedAt,
		&resolutionNote,
		&annotationsJSON,
		&evt.CreatedAt,
		&evt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	evt.AgentType = types.AgentType(agentType)
	evt.EventType = types.EventType(eventType)
	evt.SessionID = sessionID.String
	evt.ModelUsed = modelUsed.String
	evt.Status = types.EventStatus(status.String)
	evt.ResolutionNote = resolutionNote.String
	if resolvedAt.Valid {
		t := resolvedAt.Time
		evt.ResolvedAt = &t
	}

	if evt.ContextData, err = unmarshalMap(contextJSON); err != nil {
		return nil, fmt.Errorf("context_data: %w", err)
	}
	if evt.KeyFindings, err = unmarshalMap(findingsJSON); err != nil {
		return nil, fmt.Errorf("key_findings: %w", err)
	}
	if relatedJSON.Valid && relatedJSON.String != "" {
		if err := json.Unmarshal([]byte(relatedJSON.String), &evt.RelatedEntities); err != nil {
			return nil, fmt.Errorf("related_entities: %w", err)
		}
	}
	if evt.Annotations, err = unmarshalAnnotations(annotationsJSON); err != nil {
		return nil, err
	}

	return &evt, nil
}

// normalizeAnnotation fills in the timestamp and a default status.
func normalizeAnnotation(a types.Annotation, status types.AnnotationStatus) types.Annotation {
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	a.Timestamp = a.Timestamp.UTC()
	if a.Status == "" {
		a.Status = status
	}
	return a
}
