package datasource

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lodestone-kb/lodestone/internal/config"
)

// NewRegistryFromConfig builds and populates a registry from configuration.
// dims is the embedding dimension every datasource must store.
func NewRegistryFromConfig(ctx context.Context, cfgs []config.DatasourceConfig, dims int) (*Registry, error) {
	registry := NewRegistry()

	for _, cfg := range cfgs {
		var (
			ds  Datasource
			err error
		)

		switch cfg.Type {
		case "local":
			ds, err = NewLocal(LocalConfig{
				Name:       cfg.Name,
				Path:       cfg.Path,
				Dimensions: dims,
			})
		case "redis":
			ds, err = NewRedis(ctx, RedisConfig{
				Name:       cfg.Name,
				Addrs:      cfg.Addrs,
				Prefix:     cfg.Prefix,
				Dimensions: dims,
			})
		default:
			err = fmt.Errorf("unknown datasource type %q", cfg.Type)
		}

		if err != nil {
			_ = registry.Close()
			return nil, fmt.Errorf("datasource %s: %w", cfg.Name, err)
		}

		if err := registry.Register(ds); err != nil {
			_ = ds.Close()
			_ = registry.Close()
			return nil, err
		}

		slog.Info("datasource registered",
			slog.String("name", cfg.Name),
			slog.String("type", cfg.Type))
	}

	return registry, nil
}
