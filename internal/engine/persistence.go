package engine

import (
	"context"

	"github.com/samcm/ts-querybot/internal/ipc"
	"github.com/samcm/ts-querybot/internal/storage"
)

// Persistence stores settings and per-client values across sessions.
// storage.SQLite implements it.
type Persistence interface {
	Value(ctx context.Context, key, def string) (string, error)
	SetValue(ctx context.Context, key, value string) error
	ClientValue(ctx context.Context, cldbid int, key, def string) (string, error)
	SetClientValue(ctx context.Context, cldbid int, key, value string) error
	ClientValues(ctx context.Context, cldbid int) (map[string]string, error)
	SetClientAccessLevel(ctx context.Context, cldbid, level int) error
	RecordOnline(ctx context.Context, c storage.OnlineClient) error
	RemoveOnline(ctx context.Context, clid int) error
	ClearOnline(ctx context.Context) error
}

// SaidQueue yields externally produced "client said" messages without
// blocking. ipc.Queue implements it.
type SaidQueue interface {
	TryPop() (ipc.Message, bool)
}

type noopPersistence struct{}

func (noopPersistence) Value(_ context.Context, _, def string) (string, error) { return def, nil }
func (noopPersistence) SetValue(context.Context, string, string) error         { return nil }
func (noopPersistence) ClientValue(_ context.Context, _ int, _, def string) (string, error) {
	return def, nil
}
func (noopPersistence) SetClientValue(context.Context, int, string, string) error { return nil }
func (noopPersistence) ClientValues(context.Context, int) (map[string]string, error) {
	return nil, nil
}
func (noopPersistence) SetClientAccessLevel(context.Context, int, int) error    { return nil }
func (noopPersistence) RecordOnline(context.Context, storage.OnlineClient) error { return nil }
func (noopPersistence) RemoveOnline(context.Context, int) error                  { return nil }
func (noopPersistence) ClearOnline(context.Context) error                        { return nil }
