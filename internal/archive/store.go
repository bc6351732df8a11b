// Package archive retains cleanup sweep records in S3.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/brightsmile/dental-scheduling/pkg/logging"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// SweepRecord is the retention document written once per missed-
// appointment cleanup run.
type SweepRecord struct {
	Version        string    `json:"version"`
	SweepID        string    `json:"sweep_id"`
	ActorID        string    `json:"actor_id"`
	AppointmentIDs []string  `json:"appointment_ids"`
	Updated        int       `json:"updated"`
	SweptAt        time.Time `json:"swept_at"`
}

// ManifestEntry is one JSONL line in the monthly sweep manifest.
type ManifestEntry struct {
	SweepID string `json:"sweep_id"`
	S3Key   string `json:"s3_key"`
	ActorID string `json:"actor_id"`
	Updated int    `json:"updated"`
	SweptAt string `json:"swept_at"`
}

// Store archives sweep records to S3.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
}

// NewStore creates an archive Store. If bucket is empty, all operations
// are no-ops.
func NewStore(s3Client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{bucket: bucket, s3Client: s3Client, logger: logger}
}

// Enabled returns true if archival is configured (bucket is set).
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// ArchiveSweep writes a SweepRecord as JSON to S3 and appends to the
// monthly manifest.
func (s *Store) ArchiveSweep(ctx context.Context, record *SweepRecord) error {
	if !s.Enabled() {
		return nil
	}
	if record.Version == "" {
		record.Version = "1.0"
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("archive: marshal sweep record: %w", err)
	}

	now := record.SweptAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s3Key := fmt.Sprintf("sweeps/v1/by-date/%d/%02d/%02d/%s.json",
		now.Year(), now.Month(), now.Day(), record.SweepID)

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s3Key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put %s: %w", s3Key, err)
	}

	s.logger.Info("archived cleanup sweep to S3",
		"sweep_id", record.SweepID,
		"s3_key", s3Key,
		"actor_id", record.ActorID,
		"updated", record.Updated,
	)

	entry := ManifestEntry{
		SweepID: record.SweepID,
		S3Key:   s3Key,
		ActorID: record.ActorID,
		Updated: record.Updated,
		SweptAt: now.Format(time.RFC3339),
	}

	if err := s.AppendManifest(ctx, entry); err != nil {
		// The sweep record itself is already safely stored.
		s.logger.Warn("failed to append sweep manifest", "error", err, "sweep_id", record.SweepID)
	}

	return nil
}

// AppendManifest appends a JSONL line to the monthly manifest file.
// Uses read-modify-write since S3 doesn't support append.
func (s *Store) AppendManifest(ctx context.Context, entry ManifestEntry) error {
	if !s.Enabled() {
		return nil
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest entry: %w", err)
	}

	now := time.Now().UTC()
	manifestKey := fmt.Sprintf("sweeps/v1/manifests/%d-%02d.jsonl", now.Year(), now.Month())

	var existing []byte
	getResp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(manifestKey),
	})
	if err != nil {
		if !isNotFoundErr(err) {
			s.logger.Debug("manifest read failed, starting fresh", "key", manifestKey, "error", err)
		}
	} else {
		existing, _ = io.ReadAll(getResp.Body)
		getResp.Body.Close()
	}

	var buf bytes.Buffer
	if len(existing) > 0 {
		buf.Write(existing)
		if existing[len(existing)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	buf.Write(line)
	buf.WriteByte('\n')

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(manifestKey),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put manifest: %w", err)
	}

	return nil
}

// isNotFoundErr checks if the error is an S3 NoSuchKey error. String
// check; errors.As against the generated S3 types misses wrapped
// variants.
func isNotFoundErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "NoSuchKey") || strings.Contains(msg, "404") || strings.Contains(msg, "not found")
}
