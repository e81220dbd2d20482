package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// Connect establishes a connection to the database
func Connect(connectionString string) (*DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)

	return &DB{db}, nil
}

// MigrationFiles returns the .sql files of dir in execution order
func MigrationFiles(dir string) ([]string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var sqlFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".sql") {
			sqlFiles = append(sqlFiles, file.Name())
		}
	}
	sort.Strings(sqlFiles)
	return sqlFiles, nil
}

// RunMigrations executes all SQL migration files in order
func (db *DB) RunMigrations(migrationsDir string, logger logrus.FieldLogger) error {
	sqlFiles, err := MigrationFiles(migrationsDir)
	if err != nil {
		return err
	}

	for _, filename := range sqlFiles {
		logger.WithField("file", filename).Info("Running migration")

		content, err := os.ReadFile(filepath.Join(migrationsDir, filename))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, err)
		}
		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}
	}

	logger.WithField("count", len(sqlFiles)).Info("Migrations completed")
	return nil
}

// InsertLeakAlert records an alert. Redelivered alerts are ignored, so the
// return value reports whether a row was written.
func (db *DB) InsertLeakAlert(ctx context.Context, alert *LeakAlert) (bool, error) {
	query := `
		INSERT INTO leak_alerts (
			alert_id, alert_type, severity, segment_id, message, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (alert_id) DO NOTHING
	`

	res, err := db.ExecContext(ctx, query,
		alert.AlertID,
		alert.AlertType,
		alert.Severity,
		alert.SegmentID,
		alert.Message,
		alert.OccurredAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert leak alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// OpenIncident starts an incident for a segment unless one is already open
func (db *DB) OpenIncident(ctx context.Context, inc *LeakIncident) error {
	query := `
		INSERT INTO leak_incidents (
			segment_id, severity, start_alert_id, start_time, status
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (segment_id) WHERE status = 'OPEN' DO NOTHING
	`

	_, err := db.ExecContext(ctx, query,
		inc.SegmentID,
		inc.Severity,
		inc.StartAlertID,
		inc.StartTime,
		IncidentStatusOpen,
	)
	if err != nil {
		return fmt.Errorf("failed to open incident: %w", err)
	}
	return nil
}

// CloseIncident resolves the open incident of a segment, if any
func (db *DB) CloseIncident(ctx context.Context, segmentID string, endTime time.Time) error {
	query := `
		UPDATE leak_incidents
		SET status = $1, end_time = $2, updated_at = CURRENT_TIMESTAMP
		WHERE segment_id = $3 AND status = $4
	`

	if _, err := db.ExecContext(ctx, query, IncidentStatusResolved, endTime, segmentID, IncidentStatusOpen); err != nil {
		return fmt.Errorf("failed to close incident: %w", err)
	}
	return nil
}

// GetOpenIncidents returns the incidents that have not been resolved
func (db *DB) GetOpenIncidents(ctx context.Context) ([]*LeakIncident, error) {
	query := `
		SELECT incident_id, segment_id, severity, start_alert_id, start_time
		FROM leak_incidents
		WHERE status = $1
		ORDER BY start_time
	`

	rows, err := db.QueryContext(ctx, query, IncidentStatusOpen)
	if err != nil {
		return nil, fmt.Errorf("failed to query incidents: %w", err)
	}
	defer rows.Close()

	var incidents []*LeakIncident
	for rows.Next() {
		inc := &LeakIncident{Status: IncidentStatusOpen}
		if err := rows.Scan(&inc.IncidentID, &inc.SegmentID, &inc.Severity, &inc.StartAlertID, &inc.StartTime); err != nil {
			return nil, err
		}
		incidents = append(incidents, inc)
	}
	return incidents, rows.Err()
}
