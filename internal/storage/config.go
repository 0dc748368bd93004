package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/kyleking/schema-replay/internal/config"
)

// NewDuckDBRepositoryFromConfig opens the snapshot store described by the
// database section. An empty query_timeout falls back to DefaultQueryTimeout.
func NewDuckDBRepositoryFromConfig(cfg *config.DatabaseConfig) (*DuckDBRepository, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("snapshot database path is empty")
	}

	timeout := DefaultQueryTimeout

	if cfg.QueryTimeout != "" {
		d, err := time.ParseDuration(cfg.QueryTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid snapshot database query_timeout %q: %w", cfg.QueryTimeout, err)
		}

		if d <= 0 {
			return nil, fmt.Errorf("snapshot database query_timeout must be positive, got %s", d)
		}

		timeout = d
	}

	return NewDuckDBRepositoryWithTimeout(cfg.Path, timeout)
}
