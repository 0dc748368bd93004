package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ContextList is the cached result of `dotnet ef dbcontext list`
type ContextList struct {
	ProjectDir string    `json:"project_dir"`
	Framework  string    `json:"framework,omitempty"`
	Contexts   []string  `json:"contexts"`
	ListedAt   time.Time `json:"listed_at"`
}

// ContextKey builds the cache key for a project's context list. The project
// file's modification time is part of the key so editing it invalidates the
// entry; an empty csproj contributes nothing.
func ContextKey(projectDir, csproj, framework string) string {
	stamp := ""

	if csproj != "" {
		if info, err := os.Stat(csproj); err == nil {
			stamp = info.ModTime().UTC().Format(time.RFC3339Nano)
		}
	}

	return fmt.Sprintf("contexts:%s:%s:%s", filepath.Clean(projectDir), framework, stamp)
}

// GetContexts returns a cached context list. ok is false on a miss.
func GetContexts(ctx context.Context, c Cache, key string) (list ContextList, ok bool, err error) {
	data, err := c.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrMiss) {
			return ContextList{}, false, nil
		}

		return ContextList{}, false, err
	}

	if err := json.Unmarshal(data, &list); err != nil {
		// a corrupt entry behaves like a miss and is dropped
		_ = c.Delete(ctx, key)
		return ContextList{}, false, nil
	}

	return list, true, nil
}

// PutContexts stores a context list with the cache's default TTL
func PutContexts(ctx context.Context, c Cache, key string, list ContextList) error {
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to marshal context list: %w", err)
	}

	return c.Set(ctx, key, data, 0)
}
