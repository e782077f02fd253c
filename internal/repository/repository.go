package repository

import (
	"context"
	"database/sql"
	"time"

	"rinnai_bridge/internal/models"
	"rinnai_bridge/internal/repository/db"
)

// InitDB opens the SQLite file and ensures the schema exists.
func InitDB(path string) (*sql.DB, error) {
	return db.InitDB(path)
}

type Authorization interface {
	Create(username, hash string) (int, error)
	GetByUsername(username string) (*models.User, error)
}

// CounterRepo persists the cumulative usage counters per device so they
// survive restarts. Writes are last-write-wins per device.
type CounterRepo interface {
	Save(ctx context.Context, counters map[string]models.EnergyCounters) error
	Load(ctx context.Context) (map[string]models.EnergyCounters, error)
}

// EventRepo is the append-only audit log for commands and cycle errors.
type EventRepo interface {
	Append(ctx context.Context, e models.Event) error
	List(ctx context.Context, from, to time.Time, typ string) ([]models.Event, error)
}

type Repository struct {
	Counters CounterRepo
	Events   EventRepo
	Auth     Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Counters: NewCounterSQLite(db),
		Events:   NewEventSQLite(db),
		Auth:     NewUserRepository(db),
	}
}
