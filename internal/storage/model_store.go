package storage

import (
	"context"
	"fmt"
	"log/slog"
)

// UpsertModelVersion registers a model artifact in the model_versions table.
// The worker calls this once at startup for whichever scorer it loaded, so
// every score row's model_version resolves to full artifact metadata.
//
// Re-registering the same version refreshes params_hash and metadata, which
// covers redeploys of a corrected artifact under the same version string.
func (s *Store) UpsertModelVersion(ctx context.Context, record *ModelVersionRecord) error {
	defer s.timed("upsert_model_version")()

	const query = `
		INSERT INTO model_versions (model_version, created_at, params_hash, metadata_json)
		VALUES ($1, NOW(), $2, $3)
		ON CONFLICT (model_version) DO UPDATE
		SET params_hash = EXCLUDED.params_hash,
			metadata_json = EXCLUDED.metadata_json`

	if _, err := s.conn.ExecContext(ctx, query,
		record.ModelVersion, record.ParamsHash, []byte(record.MetadataJSON),
	); err != nil {
		return fmt.Errorf("failed to register model version %s: %w", record.ModelVersion, err)
	}

	s.logger.Info("model version registered",
		slog.String("model_version", record.ModelVersion),
		slog.String("params_hash", record.ParamsHash),
	)

	return nil
}
