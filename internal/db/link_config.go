package db

import (
	"database/sql"
	"errors"
	"fmt"
)

// LinkConfig is a stored serial link definition.
type LinkConfig struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	PortPath    string `json:"port_path"`
	BaudRate    int    `json:"baud_rate"`
	DataBits    int    `json:"data_bits"`
	StopBits    int    `json:"stop_bits"`
	Parity      string `json:"parity"`
	Capacity    int    `json:"capacity"`
	Checksum    bool   `json:"checksum"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

const linkConfigColumns = `id, name, port_path, baud_rate, data_bits, stop_bits, parity,
	capacity, checksum, enabled, description, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLinkConfig(s rowScanner) (LinkConfig, error) {
	var c LinkConfig
	var checksum, enabled int
	err := s.Scan(&c.ID, &c.Name, &c.PortPath, &c.BaudRate, &c.DataBits, &c.StopBits, &c.Parity,
		&c.Capacity, &checksum, &enabled, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	c.Checksum = checksum == 1
	c.Enabled = enabled == 1
	return c, err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (db *DB) queryLinkConfigs(where string, args ...any) ([]LinkConfig, error) {
	rows, err := db.Query(`SELECT `+linkConfigColumns+` FROM link_config `+where+` ORDER BY created_at ASC, id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query link configs: %w", err)
	}
	defer rows.Close()

	var configs []LinkConfig
	for rows.Next() {
		c, err := scanLinkConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link config: %w", err)
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

// GetLinkConfigs returns all link configurations.
func (db *DB) GetLinkConfigs() ([]LinkConfig, error) {
	return db.queryLinkConfigs("")
}

// GetEnabledLinkConfigs returns the enabled link configurations.
func (db *DB) GetEnabledLinkConfigs() ([]LinkConfig, error) {
	return db.queryLinkConfigs("WHERE enabled = 1")
}

// GetLinkConfig returns one configuration, or nil if id does not exist.
func (db *DB) GetLinkConfig(id int) (*LinkConfig, error) {
	row := db.QueryRow(`SELECT `+linkConfigColumns+` FROM link_config WHERE id = ?`, id)
	c, err := scanLinkConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get link config: %w", err)
	}
	return &c, nil
}

// GetLinkConfigByName returns one configuration, or nil if name does not exist.
func (db *DB) GetLinkConfigByName(name string) (*LinkConfig, error) {
	row := db.QueryRow(`SELECT `+linkConfigColumns+` FROM link_config WHERE name = ?`, name)
	c, err := scanLinkConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get link config: %w", err)
	}
	return &c, nil
}

// CreateLinkConfig inserts c and returns its id.
func (db *DB) CreateLinkConfig(c *LinkConfig) (int64, error) {
	result, err := db.Exec(
		`INSERT INTO link_config (name, port_path, baud_rate, data_bits, stop_bits, parity,
			capacity, checksum, enabled, description)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Name, c.PortPath, c.BaudRate, c.DataBits, c.StopBits, c.Parity,
		c.Capacity, boolInt(c.Checksum), boolInt(c.Enabled), c.Description)
	if err != nil {
		return 0, fmt.Errorf("failed to create link config: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get inserted id: %w", err)
	}
	c.ID = int(id)
	return id, nil
}

// UpdateLinkConfig overwrites the row with c.ID.
func (db *DB) UpdateLinkConfig(c *LinkConfig) error {
	result, err := db.Exec(
		`UPDATE link_config SET name = ?, port_path = ?, baud_rate = ?, data_bits = ?, stop_bits = ?,
			parity = ?, capacity = ?, checksum = ?, enabled = ?, description = ?,
			updated_at = CAST(strftime('%s', 'now') AS INTEGER)
		 WHERE id = ?`,
		c.Name, c.PortPath, c.BaudRate, c.DataBits, c.StopBits, c.Parity,
		c.Capacity, boolInt(c.Checksum), boolInt(c.Enabled), c.Description, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update link config: %w", err)
	}
	return expectOneRow(result, c.ID)
}

// DeleteLinkConfig removes the row with id.
func (db *DB) DeleteLinkConfig(id int) error {
	result, err := db.Exec(`DELETE FROM link_config WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete link config: %w", err)
	}
	return expectOneRow(result, id)
}

func expectOneRow(result sql.Result, id int) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("link config %d not found", id)
	}
	return nil
}
