package api

import (
	"context"

	"github.com/zhumanklv/yandex-academy-task/model"
)

// CitizenStore is the persistence surface the handlers need.
type CitizenStore interface {
	CreateImport(ctx context.Context, citizens []model.Citizen) (int64, error)
	Citizens(ctx context.Context, importID int64) ([]model.Citizen, error)
	PatchCitizen(ctx context.Context, importID, citizenID int64, patch model.CitizenPatch) (model.Citizen, error)
}

// Locker serialises writers and statistics computation per import.
type Locker interface {
	Acquire(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

// StatsCache stores computed statistics responses between reads.
type StatsCache interface {
	Get(ctx context.Context, kind string, importID int64, out interface{}) (bool, error)
	Put(ctx context.Context, kind string, importID int64, payload interface{}) error
	Invalidate(ctx context.Context, importID int64) error
}

// envelope wraps every successful response body.
type envelope struct {
	Data interface{} `json:"data"`
}

type importResponse struct {
	ImportID int64 `json:"import_id"`
}
