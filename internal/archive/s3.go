// Package archive uploads rendered exports to an S3-compatible bucket (AWS S3 or MinIO).
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/kiranshivaraju/sheltertrack/internal/config"
	"github.com/kiranshivaraju/sheltertrack/internal/export"
	"github.com/kiranshivaraju/sheltertrack/pkg/models"
)

// ErrDisabled is returned when no export bucket is configured.
var ErrDisabled = errors.New("export archive is not configured")

// PutObjectAPI is the subset of the S3 client the archiver needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Result describes an uploaded export.
type Result struct {
	Bucket string    `json:"bucket"`
	Key    string    `json:"key"`
	Rows   int       `json:"rows"`
	Bytes  int       `json:"bytes"`
	At     time.Time `json:"at"`
}

// Archiver writes CSV exports under a key prefix in one bucket.
type Archiver struct {
	client PutObjectAPI
	bucket string
	prefix string
}

// NewArchiver wraps an existing client.
func NewArchiver(client PutObjectAPI, bucket, prefix string) *Archiver {
	return &Archiver{client: client, bucket: bucket, prefix: prefix}
}

// New builds an Archiver from cfg using the default AWS credential chain.
// Returns ErrDisabled when cfg.Bucket is empty.
func New(ctx context.Context, cfg config.ExportConfig) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, ErrDisabled
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewArchiver(client, cfg.Bucket, cfg.Prefix), nil
}

// Archive renders animals as CSV and uploads it as <prefix><export filename>.
// Uploads for the same day overwrite each other.
func (a *Archiver) Archive(ctx context.Context, animals []*models.Animal, at time.Time) (*Result, error) {
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, animals); err != nil {
		return nil, err
	}
	size := buf.Len()

	key := a.prefix + export.Filename(at)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentType:   aws.String(export.ContentType),
		ContentLength: aws.Int64(int64(size)),
		Metadata: map[string]string{
			"rows": fmt.Sprintf("%d", len(animals)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", key, err)
	}

	return &Result{Bucket: a.bucket, Key: key, Rows: len(animals), Bytes: size, At: at.UTC()}, nil
}
