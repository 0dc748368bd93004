package cmd

import (
	"context"
	stderrors "errors"

	"github.com/kyleking/schema-replay/internal/config"
	"github.com/kyleking/schema-replay/internal/errors"
	"github.com/kyleking/schema-replay/internal/storage"
)

// initializeStorage opens the snapshot store and brings its schema up to date
func initializeStorage(ctx context.Context, cfg *config.Config) (storage.Repository, error) {
	repo, err := storage.NewDuckDBRepositoryFromConfig(&cfg.Database)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to open snapshot database").
			WithSuggestion("Check --db-path or SCHEMA_REPLAY_DB_PATH")
	}

	if err := repo.Initialize(ctx); err != nil {
		repo.Close()
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to initialize snapshot database")
	}

	return repo, nil
}

// snapshotError maps store lookup errors to typed errors
func snapshotError(err error, id string) error {
	switch {
	case stderrors.Is(err, storage.ErrSnapshotNotFound):
		return errors.Wrapf(err, errors.ErrTypeNotFound, "snapshot %s not found", id).
			WithSuggestion("List saved snapshots with `schema-replay snapshots list`")
	case stderrors.Is(err, storage.ErrAmbiguousID):
		return errors.Wrapf(err, errors.ErrTypeValidation, "snapshot id %s matches several snapshots", id).
			WithSuggestion("Use more characters of the id")
	default:
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to read snapshot")
	}
}
