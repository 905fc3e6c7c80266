package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/lexia/casedesk/config"
	"github.com/lexia/casedesk/internal/blob"
)

// ConnectStorage builds the S3 client for case files and export archives.
func ConnectStorage(cfg config.StorageConfig, logger *slog.Logger) (*blob.S3Store, error) {
	store, err := blob.NewS3Store(blob.S3Config{
		Region:          cfg.Region,
		Bucket:          cfg.Bucket,
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		ForcePathStyle:  cfg.ForcePathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object storage: %w", err)
	}

	if logger != nil {
		logger.Info("object storage connected",
			"bucket", cfg.Bucket,
			"region", cfg.Region,
		)
	}

	return store, nil
}
