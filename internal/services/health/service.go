package health

import (
	"context"
	"database/sql"
	"time"

	"docstore-backend/internal/resilience"
)

const pingTimeout = 2 * time.Second

// Check reports the state of one dependency.
type Check struct {
	Status  string `json:"status"`
	Breaker string `json:"breaker,omitempty"`
}

// Status is the health endpoint payload.
type Status struct {
	OK     bool             `json:"ok"`
	Env    string           `json:"env"`
	Checks map[string]Check `json:"checks"`
}

// Service reports liveness of the service's two backends. A nil DB means the
// process runs on in-memory repositories.
type Service struct {
	DB         *sql.DB
	StoreGuard *resilience.Guard
	DBGuard    *resilience.Guard
	Env        string
}

// NewService constructs a health service.
func NewService(database *sql.DB, storeGuard, dbGuard *resilience.Guard, env string) *Service {
	return &Service{DB: database, StoreGuard: storeGuard, DBGuard: dbGuard, Env: env}
}

// Status probes the database and reads breaker states. An open breaker or a
// failed ping degrades the overall result without failing the endpoint.
func (s *Service) Status(ctx context.Context) Status {
	checks := map[string]Check{
		"object_store": breakerCheck(s.StoreGuard),
		"database":     s.databaseCheck(ctx),
	}

	ok := true
	for _, c := range checks {
		if c.Status != "up" {
			ok = false
		}
	}
	return Status{OK: ok, Env: s.Env, Checks: checks}
}

func (s *Service) databaseCheck(ctx context.Context) Check {
	check := breakerCheck(s.DBGuard)
	if s.DB == nil {
		check.Status = "up"
		check.Breaker = ""
		return check
	}
	if check.Status != "up" {
		return check
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := s.DB.PingContext(pingCtx); err != nil {
		check.Status = "down"
	}
	return check
}

func breakerCheck(guard *resilience.Guard) Check {
	state := guard.State()
	status := "up"
	if state == resilience.StateOpen {
		status = "down"
	}
	return Check{Status: status, Breaker: state.String()}
}
