package postgres

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/scrypster/agentmemory/pkg/types"
)

// nullableTime converts a time pointer to sql.NullTime.
func nullableTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullableString converts a string to sql.NullString.
// An empty string is treated as NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

// marshalJSONB encodes v for a JSONB column, or NULL when empty is set.
func marshalJSONB(v interface{}, empty bool) (sql.NullString, error) {
	if empty {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalJSONB(s sql.NullString, dst interface{}) error {
	if !s.Valid || s.String == "" || s.String == "null" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), dst)
}

// escapeLike escapes LIKE wildcards so user text matches literally.
// PostgreSQL uses backslash as the default LIKE escape character.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
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
