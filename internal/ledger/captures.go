package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nathanvale/capture-bridge/internal/capture"
	"github.com/nathanvale/capture-bridge/internal/capturebridge"
)

// Capture is a row of the captures table (spec §3.1).
type Capture struct {
	ID          string
	Source      capture.Source
	RawContent  sql.NullString
	ContentHash sql.NullString
	Status      capture.Status
	MetaJSON    string
	CreatedAt   string
	UpdatedAt   string
}

// InsertCapture inserts a new staged capture row within tx. meta is
// marshaled to JSON; a marshal failure maps to staging.invalid_metadata.
func InsertCapture(tx *sql.Tx, id string, source capture.Source, rawContent string, status capture.Status, meta any, now string) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return capturebridge.New(capturebridge.CodeStagingInvalidMetadata, "marshal capture metadata", err)
	}

	_, err = tx.Exec(
		`INSERT INTO captures (id, source, raw_content, content_hash, status, meta_json, created_at, updated_at)
		 VALUES (?, ?, ?, NULL, ?, ?, ?, ?)`,
		id, string(source), rawContent, string(status), string(metaJSON), now, now,
	)
	if err != nil {
		return mapErr(err)
	}
	return nil
}

// GetCapture reads a single capture row by id.
func GetCapture(q Querier, id string) (*Capture, error) {
	row := q.QueryRow(
		`SELECT id, source, raw_content, content_hash, status, meta_json, created_at, updated_at
		 FROM captures WHERE id = ?`, id,
	)
	var c Capture
	var source, status string
	if err := row.Scan(&c.ID, &source, &c.RawContent, &c.ContentHash, &status, &c.MetaJSON, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, mapErr(err)
	}
	c.Source = capture.Source(source)
	c.Status = capture.Status(status)
	return &c, nil
}

// ListCapturesByStatus returns every capture row currently in one of
// statuses, oldest first, for the export-driving loop to pick up.
func ListCapturesByStatus(q Querier, statuses ...capture.Status) ([]Capture, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, s := range statuses {
		placeholders[i] = "?"
		args[i] = string(s)
	}

	query := fmt.Sprintf(
		`SELECT id, source, raw_content, content_hash, status, meta_json, created_at, updated_at
		 FROM captures WHERE status IN (%s) ORDER BY created_at ASC`,
		strings.Join(placeholders, ","),
	)

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []Capture
	for rows.Next() {
		var c Capture
		var source, status string
		if err := rows.Scan(&c.ID, &source, &c.RawContent, &c.ContentHash, &status, &c.MetaJSON, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, mapErr(err)
		}
		c.Source = capture.Source(source)
		c.Status = capture.Status(status)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

// AdvanceStatus validates the status transition against the capture state
// machine (internal/capture) and, if legal, updates the row within tx.
// Terminal-state rows are rejected by ValidateTransition before any SQL
// runs.
func AdvanceStatus(tx *sql.Tx, id string, from, to capture.Status, now string) error {
	if err := capture.ValidateTransition(from, to); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}

	res, err := tx.Exec(
		`UPDATE captures SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), now, id, string(from),
	)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapErr(err)
	}
	if n == 0 {
		return fmt.Errorf("ledger: capture %q was not in status %q (concurrent modification or missing row)", id, from)
	}
	return nil
}

// BindContentHash sets content_hash on a capture that was staged with it
// NULL (the voice late-binding path of spec §3.1).
func BindContentHash(tx *sql.Tx, id, hash, now string) error {
	_, err := tx.Exec(`UPDATE captures SET content_hash = ?, updated_at = ? WHERE id = ?`, hash, now, id)
	if err != nil {
		return mapErr(err)
	}
	return nil
}
