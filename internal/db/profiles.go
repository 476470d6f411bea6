package db

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/groundstation/internal/transport"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrProfileExists   = errors.New("profile name already in use")
)

// Profile is a named, saved transport configuration. Options holds the JSON
// encoding of the transport config for Kind.
type Profile struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Kind        transport.Kind  `json:"kind"`
	Options     json.RawMessage `json:"options"`
	Description string          `json:"description"`
	CreatedAt   int64           `json:"created_at"`
	UpdatedAt   int64           `json:"updated_at"`
	LastUsedAt  *int64          `json:"last_used_at,omitempty"`
}

// Validate checks the name and kind and that Options decodes into the
// transport config for Kind.
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("profile name is required")
	}
	if _, err := transport.ParseKind(string(p.Kind)); err != nil {
		return err
	}
	if len(p.Options) == 0 {
		p.Options = json.RawMessage("{}")
	}
	var err error
	switch p.Kind {
	case transport.KindSerial:
		_, err = p.SerialConfig()
	case transport.KindWireless:
		_, err = p.WirelessConfig()
	case transport.KindSocket:
		_, err = p.SocketConfig()
	}
	return err
}

func (p *Profile) decode(kind transport.Kind, v any) error {
	if p.Kind != kind {
		return fmt.Errorf("profile %q is a %s profile, not %s", p.Name, p.Kind, kind)
	}
	dec := json.NewDecoder(bytes.NewReader(p.Options))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("profile %q options: %w", p.Name, err)
	}
	return nil
}

func (p *Profile) SerialConfig() (transport.SerialConfig, error) {
	var c transport.SerialConfig
	if err := p.decode(transport.KindSerial, &c); err != nil {
		return c, err
	}
	if c.Port == "" {
		return c, fmt.Errorf("profile %q: serial port is required", p.Name)
	}
	opts, err := c.Options.Normalize()
	if err != nil {
		return c, fmt.Errorf("profile %q: %w", p.Name, err)
	}
	c.Options = opts
	return c, nil
}

func (p *Profile) WirelessConfig() (transport.WirelessConfig, error) {
	var c transport.WirelessConfig
	err := p.decode(transport.KindWireless, &c)
	return c, err
}

func (p *Profile) SocketConfig() (transport.SocketConfig, error) {
	var c transport.SocketConfig
	if err := p.decode(transport.KindSocket, &c); err != nil {
		return c, err
	}
	if c.Host == "" {
		return c, fmt.Errorf("profile %q: socket host is required", p.Name)
	}
	return c, nil
}

const profileColumns = `profile_id, name, kind, options, description, created_at, updated_at, last_used_at`

func scanProfile(row interface{ Scan(...any) error }) (Profile, error) {
	var (
		p        Profile
		kind     string
		options  string
		lastUsed sql.NullInt64
	)
	if err := row.Scan(&p.ID, &p.Name, &kind, &options, &p.Description, &p.CreatedAt, &p.UpdatedAt, &lastUsed); err != nil {
		return p, err
	}
	p.Kind = transport.Kind(kind)
	p.Options = json.RawMessage(options)
	if lastUsed.Valid {
		p.LastUsedAt = &lastUsed.Int64
	}
	return p, nil
}

// ListProfiles returns every profile, most recently used first.
func (db *DB) ListProfiles() ([]Profile, error) {
	rows, err := db.Query(`SELECT ` + profileColumns + ` FROM transport_profiles
	          ORDER BY COALESCE(last_used_at, 0) DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	profiles := []Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return profiles, nil
}

// GetProfile returns the profile with id, or ErrProfileNotFound.
func (db *DB) GetProfile(id int64) (*Profile, error) {
	row := db.QueryRow(`SELECT `+profileColumns+` FROM transport_profiles WHERE profile_id = ?`, id)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrProfileNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &p, nil
}

// CreateProfile validates and inserts p, returning the new ID.
func (db *DB) CreateProfile(p *Profile) (int64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	result, err := db.Exec(`INSERT INTO transport_profiles (name, kind, options, description)
	          VALUES (?, ?, ?, ?)`,
		strings.TrimSpace(p.Name), string(p.Kind), string(p.Options), p.Description)
	if err != nil {
		return 0, wrapConstraint(err, "create")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return id, nil
}

// UpdateProfile replaces the profile with p.ID.
func (db *DB) UpdateProfile(p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	result, err := db.Exec(`UPDATE transport_profiles
	          SET name = ?, kind = ?, options = ?, description = ?, updated_at = unixepoch()
	          WHERE profile_id = ?`,
		strings.TrimSpace(p.Name), string(p.Kind), string(p.Options), p.Description, p.ID)
	if err != nil {
		return wrapConstraint(err, "update")
	}
	return expectOneRow(result, p.ID)
}

// DeleteProfile removes the profile with id.
func (db *DB) DeleteProfile(id int64) error {
	result, err := db.Exec(`DELETE FROM transport_profiles WHERE profile_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	return expectOneRow(result, id)
}

// MarkProfileUsed records that the profile was used to connect at t.
func (db *DB) MarkProfileUsed(id int64, t time.Time) error {
	result, err := db.Exec(`UPDATE transport_profiles SET last_used_at = ? WHERE profile_id = ?`, t.Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to mark profile used: %w", err)
	}
	return expectOneRow(result, id)
}

func expectOneRow(result sql.Result, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrProfileNotFound, id)
	}
	return nil
}

func wrapConstraint(err error, op string) error {
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrProfileExists
	}
	return fmt.Errorf("failed to %s profile: %w", op, err)
}
