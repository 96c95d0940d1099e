// Package store records sweep plans: which document was expanded, with what
// seed, and which pool files the points were written to.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no plan matches an ID.
var ErrNotFound = errors.New("plan not found")

// ErrAmbiguous is returned when an ID prefix matches more than one plan.
var ErrAmbiguous = errors.New("plan ID prefix is ambiguous")

// Plan is one expansion of a sweep document into pool files.
type Plan struct {
	ID           string    `json:"id"`
	Document     string    `json:"document"`
	DocumentHash string    `json:"document_hash"`
	CreatedAt    time.Time `json:"created_at"`
	Experiments  []string  `json:"experiments"`
	Points       int       `json:"points"`
	Seed         int64     `json:"seed"`
	PoolSize     int       `json:"pool_size"`
	OutDir       string    `json:"out_dir"`

	// Pools is filled by GetPlan; ListPlans leaves it empty.
	Pools []Pool `json:"pools,omitempty"`

	// PoolCount is the number of pool files of the plan.
	PoolCount int `json:"pool_count"`
}

// Pool is one pool file written for a plan.
type Pool struct {
	Index    int    `json:"index"`
	Path     string `json:"path"`
	Checksum string `json:"checksum"`
	Points   int    `json:"points"`
}

// ManifestStore persists plans and their pool files.
type ManifestStore interface {
	// AddPlan records a plan with its pools and returns its ID. A new UUID is
	// assigned when plan.ID is empty.
	AddPlan(ctx context.Context, plan Plan) (string, error)

	// GetPlan returns the plan with the given ID or unique ID prefix.
	GetPlan(ctx context.Context, id string) (*Plan, error)

	// ListPlans returns all plans, newest first.
	ListPlans(ctx context.Context) ([]Plan, error)

	// Pools returns the pool files of a plan ordered by index.
	Pools(ctx context.Context, planID string) ([]Pool, error)

	// DeletePlan removes a plan and its pool records. Files are not touched.
	DeletePlan(ctx context.Context, id string) error

	Close() error
}
