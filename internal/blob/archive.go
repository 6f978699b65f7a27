// Package blob archives CSV snapshots of the positions table to S3 or an
// S3-compatible store.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"whale-futures/observability"
)

// ArchiveConfig holds the connection settings of the archive bucket
type ArchiveConfig struct {
	Bucket    string
	Region    string
	Endpoint  string // optional, for S3-compatible providers
	AccessKey string // optional, static credentials
	SecretKey string
	Prefix    string
}

// uploader is the part of manager.Uploader we use
type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Archive uploads snapshots under Prefix/YYYY/MM/DD/
type Archive struct {
	uploader uploader
	bucket   string
	prefix   string
	now      func() time.Time
}

// Object describes one uploaded snapshot
type Object struct {
	Bucket   string `json:"bucket"`
	Key      string `json:"key"`
	Location string `json:"location,omitempty"`
}

// NewArchive builds the S3 client from cfg. Static credentials are used
// when given, otherwise the default AWS credential chain.
func NewArchive(ctx context.Context, cfg ArchiveConfig) (*Archive, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("blob: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, errors.New("blob: region is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("blob: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := normaliseEndpoint(cfg.Endpoint)
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	return newArchive(manager.NewUploader(client), cfg.Bucket, cfg.Prefix), nil
}

func newArchive(u uploader, bucket, prefix string) *Archive {
	return &Archive{
		uploader: u,
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		now:      time.Now,
	}
}

// ObjectKey names a snapshot taken at t
func (a *Archive) ObjectKey(t time.Time) string {
	t = t.UTC()
	name := fmt.Sprintf("positions-%s-%s.csv", t.Format("20060102T150405Z"), uuid.NewString()[:8])
	return path.Join(a.prefix, t.Format("2006/01/02"), name)
}

// UploadCSV stores one CSV snapshot and returns where it went
func (a *Archive) UploadCSV(ctx context.Context, body io.Reader) (*Object, error) {
	key := a.ObjectKey(a.now())

	out, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String("text/csv; charset=utf-8"),
	})
	observability.GetMetrics().RecordArchiveUpload(err)
	if err != nil {
		return nil, fmt.Errorf("blob: upload %s: %w", key, err)
	}

	obj := &Object{Bucket: a.bucket, Key: key}
	if out != nil {
		obj.Location = out.Location
	}
	observability.Info("snapshot archived", "bucket", a.bucket, "key", key)
	return obj, nil
}

// normaliseEndpoint adds https:// to an endpoint without a scheme
func normaliseEndpoint(endpoint string) string {
	if parsed, err := url.Parse(endpoint); err == nil && parsed.Scheme != "" {
		return endpoint
	}
	return "https://" + endpoint
}
