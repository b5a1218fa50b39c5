package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver string
	// Path is the file or sqlite database path.
	Path string
	// DSN is the postgres connection string.
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
	MaxConns    int32         // postgres only; 0 means pgx default
}

// Delivery is one recorded flush outcome.
// Keep it compact and schema-stable.
type Delivery struct {
	ID        string    `json:"id"`
	At        time.Time `json:"at"`
	Transport string    `json:"transport"`
	Target    string    `json:"target"`
	Subject   string    `json:"subject,omitempty"`
	Items     int       `json:"items"`
	FirstID   string    `json:"first_id,omitempty"`
	LastID    string    `json:"last_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	TookMS    int64     `json:"took_ms"`
}

func (d Delivery) OK() bool { return d.Error == "" }
