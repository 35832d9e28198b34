package configsource

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// SQLiteSource is a Source backed by a local SQLite database: a single
// *sql.DB opened once, with its tables created if absent rather than
// driven through a migration framework.
type SQLiteSource struct {
	db *sql.DB
}

// OpenSQLiteSource opens (creating if necessary) a SQLite database at dsn
// and ensures the InputAdapters/InputStreamDevices/ActiveMeasurements
// tables exist.
func OpenSQLiteSource(dsn string) (*SQLiteSource, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite configuration source: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite configuration source: %w", err)
	}

	s := &SQLiteSource{db: db}
	if err := s.bootstrap(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSource) bootstrap() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS InputAdapters (
			ID INTEGER PRIMARY KEY,
			AdapterName TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS InputStreamDevices (
			ID INTEGER PRIMARY KEY,
			ParentID INTEGER NOT NULL DEFAULT 0,
			AccessID INTEGER NOT NULL,
			Acronym TEXT NOT NULL,
			Name TEXT NOT NULL DEFAULT '',
			ExternalTag INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS ActiveMeasurements (
			ID INTEGER PRIMARY KEY,
			DeviceID INTEGER NOT NULL,
			SignalReference TEXT NOT NULL,
			SignalID TEXT NOT NULL,
			MeasurementKey TEXT NOT NULL DEFAULT '',
			Adder REAL NOT NULL DEFAULT 0,
			Multiplier REAL NOT NULL DEFAULT 1
		);
	`)
	if err != nil {
		return fmt.Errorf("bootstrap configuration source schema: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}

// ResolveAdapterByName implements Source.
func (s *SQLiteSource) ResolveAdapterByName(name string) (AdapterRow, bool, error) {
	row := s.db.QueryRow(
		`SELECT ID, AdapterName FROM InputAdapters WHERE lower(AdapterName) = lower(?)`,
		name,
	)
	var r AdapterRow
	err := row.Scan(&r.ID, &r.AdapterName)
	if err == sql.ErrNoRows {
		return AdapterRow{}, false, nil
	}
	if err != nil {
		return AdapterRow{}, false, fmt.Errorf("resolve adapter %q: %w", name, err)
	}
	return r, true, nil
}

// DevicesByParent implements Source.
func (s *SQLiteSource) DevicesByParent(parentID int64) ([]DeviceRow, error) {
	rows, err := s.db.Query(
		`SELECT ID, ParentID, AccessID, Acronym, Name, ExternalTag
		 FROM InputStreamDevices WHERE ParentID = ?`,
		parentID,
	)
	if err != nil {
		return nil, fmt.Errorf("query devices for parent %d: %w", parentID, err)
	}
	defer rows.Close()
	return scanDevices(rows)
}

// DeviceByAccessID implements Source.
func (s *SQLiteSource) DeviceByAccessID(accessID uint16) (DeviceRow, bool, error) {
	row := s.db.QueryRow(
		`SELECT ID, ParentID, AccessID, Acronym, Name, ExternalTag
		 FROM InputStreamDevices WHERE AccessID = ?`,
		accessID,
	)
	var d DeviceRow
	var id, parentID, externalTag int64
	var access uint16
	err := row.Scan(&id, &parentID, &access, &d.Acronym, &d.Name, &externalTag)
	if err == sql.ErrNoRows {
		return DeviceRow{}, false, nil
	}
	if err != nil {
		return DeviceRow{}, false, fmt.Errorf("query device for access ID %d: %w", accessID, err)
	}
	d.ID, d.ParentID, d.AccessID, d.ExternalTag = id, parentID, access, uint32(externalTag)
	return d, true, nil
}

func scanDevices(rows *sql.Rows) ([]DeviceRow, error) {
	var out []DeviceRow
	for rows.Next() {
		var d DeviceRow
		var id, parentID, externalTag int64
		var access uint16
		if err := rows.Scan(&id, &parentID, &access, &d.Acronym, &d.Name, &externalTag); err != nil {
			return nil, fmt.Errorf("scan device row: %w", err)
		}
		d.ID, d.ParentID, d.AccessID, d.ExternalTag = id, parentID, access, uint32(externalTag)
		out = append(out, d)
	}
	return out, rows.Err()
}

// MeasurementsByDevice implements Source.
func (s *SQLiteSource) MeasurementsByDevice(deviceID int64) ([]MeasurementRow, error) {
	rows, err := s.db.Query(
		`SELECT DeviceID, SignalReference, SignalID, MeasurementKey, Adder, Multiplier
		 FROM ActiveMeasurements WHERE DeviceID = ?`,
		deviceID,
	)
	if err != nil {
		return nil, fmt.Errorf("query measurements for device %d: %w", deviceID, err)
	}
	defer rows.Close()

	var out []MeasurementRow
	for rows.Next() {
		var m MeasurementRow
		var signalID string
		if err := rows.Scan(&m.DeviceID, &m.SignalReference, &signalID, &m.Key, &m.Adder, &m.Multiplier); err != nil {
			return nil, fmt.Errorf("scan measurement row: %w", err)
		}
		id, err := uuid.Parse(strings.TrimSpace(signalID))
		if err != nil {
			return nil, fmt.Errorf("measurement %s has invalid signal ID %q: %w", m.SignalReference, signalID, err)
		}
		m.SignalID = id
		out = append(out, m)
	}
	return out, rows.Err()
}
