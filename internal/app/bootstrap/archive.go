package bootstrap

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/brightsmile/dental-scheduling/internal/archive"
	appconfig "github.com/brightsmile/dental-scheduling/internal/config"
	"github.com/brightsmile/dental-scheduling/pkg/logging"
)

// BuildArchiveStore wires the S3 sweep archive when a bucket is
// configured. Returns nil otherwise; sweep records are then only kept
// in the audit trail.
func BuildArchiveStore(s3Client *s3.Client, cfg *appconfig.Config, logger *logging.Logger) *archive.Store {
	if cfg == nil || strings.TrimSpace(cfg.ArchiveBucket) == "" {
		return nil
	}
	if s3Client == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	logger.Info("sweep archive enabled", "bucket", cfg.ArchiveBucket)
	return archive.NewStore(s3Client, cfg.ArchiveBucket, logger)
}
