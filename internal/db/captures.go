package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/eyediagram/internal/capture"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a capture ID does not exist.
var ErrNotFound = errors.New("capture not found")

// Capture is a recorded signal and its metadata.
type Capture struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Source      string    `json:"source"`
	SampleRate  float64   `json:"sample_rate,omitempty"`
	SampleCount int       `json:"sample_count"`
	CreatedAt   time.Time `json:"created_at"`
	// RenderConfig is an optional render config JSON document used as the
	// default when the capture is drawn.
	RenderConfig string    `json:"render_config,omitempty"`
	Samples      []float64 `json:"-"`
}

// InsertCapture stores c. An empty ID is replaced with a new UUID and a zero
// CreatedAt with the current time; both are written back to c.
func (db *DB) InsertCapture(c *Capture) error {
	if len(c.Samples) == 0 {
		return capture.ErrNoSamples
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	} else if _, err := uuid.Parse(c.ID); err != nil {
		return fmt.Errorf("invalid capture id %q: %w", c.ID, err)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.SampleCount = len(c.Samples)

	blob, err := capture.EncodeSamples(c.Samples, capture.EncodingF64LE)
	if err != nil {
		return err
	}

	_, err = db.Exec(`INSERT INTO captures (
			capture_id, name, source, sample_rate, sample_count, samples, created_at, render_config
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Source, c.SampleRate, c.SampleCount, blob, c.CreatedAt.UnixNano(), c.RenderConfig,
	)
	if err != nil {
		return fmt.Errorf("failed to insert capture: %w", err)
	}
	return nil
}

// GetCapture returns the capture with the given ID, samples included.
func (db *DB) GetCapture(id string) (*Capture, error) {
	var (
		c       Capture
		blob    []byte
		created int64
	)
	err := db.QueryRow(`SELECT capture_id, name, source, sample_rate, sample_count, created_at, render_config, samples
		FROM captures WHERE capture_id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Source, &c.SampleRate, &c.SampleCount, &created, &c.RenderConfig, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load capture %s: %w", id, err)
	}

	c.CreatedAt = time.Unix(0, created).UTC()
	c.Samples, err = capture.DecodeSamples(blob, capture.EncodingF64LE)
	if err != nil {
		return nil, err
	}
	if len(c.Samples) != c.SampleCount {
		return nil, fmt.Errorf("capture %s: stored %d samples, blob holds %d", id, c.SampleCount, len(c.Samples))
	}
	return &c, nil
}

// ListCaptures returns up to limit captures, newest first, without their
// samples. A limit <= 0 returns all captures.
func (db *DB) ListCaptures(limit int) ([]Capture, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`SELECT capture_id, name, source, sample_rate, sample_count, created_at, render_config
		FROM captures ORDER BY created_at DESC, capture_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	captures := []Capture{}
	for rows.Next() {
		var (
			c       Capture
			created int64
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Source, &c.SampleRate, &c.SampleCount, &created, &c.RenderConfig); err != nil {
			return nil, err
		}
		c.CreatedAt = time.Unix(0, created).UTC()
		captures = append(captures, c)
	}
	return captures, rows.Err()
}

// SetRenderConfig replaces the stored render config of a capture.
func (db *DB) SetRenderConfig(id, cfg string) error {
	res, err := db.Exec(`UPDATE captures SET render_config = ? WHERE capture_id = ?`, cfg, id)
	if err != nil {
		return fmt.Errorf("failed to update capture %s: %w", id, err)
	}
	return requireOneRow(res, id)
}

// DeleteCapture removes a capture.
func (db *DB) DeleteCapture(id string) error {
	res, err := db.Exec(`DELETE FROM captures WHERE capture_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete capture %s: %w", id, err)
	}
	return requireOneRow(res, id)
}

func requireOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
