package backup

import (
	"context"
	"fmt"

	"github.com/kadirbelkuyu/chkit/internal/database"
	"github.com/kadirbelkuyu/chkit/pkg/logger"
)

type Service interface {
	ListDatabases(ctx context.Context) ([]DatabaseInfo, error)
	Capture(ctx context.Context, options CaptureOptions) (*BackupMetadata, error)
	Replay(ctx context.Context, options ReplayOptions) error
}

// Store is the part of a connection capture and replay work against.
type Store interface {
	Exec(ctx context.Context, query string, args ...any) error
	Select(ctx context.Context, query string, args ...any) (*database.Result, error)
	Functions(ctx context.Context) ([]string, error)
	ShowCreateFunction(ctx context.Context, name string) (string, error)
	Tables(ctx context.Context) ([]string, error)
	ShowCreateTable(ctx context.Context, name string) (string, error)
	GetDatabaseName() string
}

func NewService(store Store, log *logger.Logger) Service {
	return &structureService{
		store: store,
		log:   log,
	}
}

type structureService struct {
	store Store
	log   *logger.Logger
}

func (s *structureService) ListDatabases(ctx context.Context) ([]DatabaseInfo, error) {
	const query = `
		SELECT d.name, d.engine, count(t.name) AS tables
		FROM system.databases AS d
		LEFT JOIN system.tables AS t ON t.database = d.name
		GROUP BY d.name, d.engine
		ORDER BY d.name`

	result, err := s.store.Select(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query databases: %w", err)
	}

	databases := make([]DatabaseInfo, 0, len(result.Rows))
	for i := range result.Rows {
		info := DatabaseInfo{
			Name:   result.String(i, 0),
			Engine: result.String(i, 1),
		}
		if _, err := fmt.Sscan(result.String(i, 2), &info.Tables); err != nil {
			return nil, fmt.Errorf("failed to read table count of %s: %w", info.Name, err)
		}
		databases = append(databases, info)
	}

	return databases, nil
}
