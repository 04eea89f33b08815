// Package upload copies finished sequence bundles to an S3-compatible bucket.
package upload

import (
	"context"
	"io/fs"
	"log/slog"
	"net/url"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/nishad/srafetch/internal/errors"
	"github.com/nishad/srafetch/internal/retry"
)

// ObjectStore is the subset of bucket operations the uploader needs.
type ObjectStore interface {
	EnsureBucket(ctx context.Context, bucket string) error
	PutFile(ctx context.Context, bucket, key, file string) error
}

// Config names the target bucket and how to reach it.
type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

// S3Store implements ObjectStore with minio-go.
type S3Store struct {
	client *minio.Client
	region string
}

// NewS3Store connects to the endpoint in cfg. An https scheme turns on TLS.
func NewS3Store(cfg Config) (*S3Store, error) {
	const op errors.Op = "upload.NewS3Store"

	if cfg.Endpoint == "" {
		return nil, errors.Errorf(op, errors.KindConfig, "endpoint is required")
	}
	host := cfg.Endpoint
	useSSL := cfg.UseSSL
	if u, err := url.Parse(cfg.Endpoint); err == nil && u.Host != "" {
		host = u.Host
		if u.Scheme == "https" {
			useSSL = true
		}
	}

	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.E(op, errors.KindConfig, err, "create client")
	}
	return &S3Store{client: client, region: cfg.Region}, nil
}

// EnsureBucket creates bucket when it does not exist.
func (s *S3Store) EnsureBucket(ctx context.Context, bucket string) error {
	const op errors.Op = "upload.EnsureBucket"

	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return errors.E(op, classify(err), err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return errors.E(op, classify(err), err)
	}
	return nil
}

// PutFile uploads file under key.
func (s *S3Store) PutFile(ctx context.Context, bucket, key, file string) error {
	opts := minio.PutObjectOptions{ContentType: contentType(file)}
	if _, err := s.client.FPutObject(ctx, bucket, key, file, opts); err != nil {
		return errors.E(errors.Op("upload.PutFile"), classify(err), err, key)
	}
	return nil
}

// classify maps S3 error codes to kinds. Access and missing-bucket errors do
// not improve with a retry.
func classify(err error) errors.Kind {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "NoSuchBucket":
		return errors.KindConfig
	case "":
		return errors.KindNetwork
	default:
		return errors.KindRemote
	}
}

func contentType(file string) string {
	switch {
	case strings.HasSuffix(file, ".gz"):
		return "application/gzip"
	case strings.HasSuffix(file, ".yml"), strings.HasSuffix(file, ".yaml"):
		return "application/yaml"
	case filepath.Base(file) == "MANIFEST":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}

// Uploader copies local directories into a bucket.
type Uploader struct {
	store  ObjectStore
	bucket string
	prefix string
	retry  retry.Policy
	logger *slog.Logger
}

// NewUploader returns an uploader writing to bucket under prefix.
func NewUploader(store ObjectStore, bucket, prefix string, policy retry.Policy, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{
		store:  store,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		retry:  policy,
		logger: logger,
	}
}

// UploadDir uploads every regular file below dir. Keys are the prefix, the
// directory's base name and the file's slash-separated relative path. It
// returns the keys written, sorted.
func (u *Uploader) UploadDir(ctx context.Context, dir string) ([]string, error) {
	const op errors.Op = "upload.UploadDir"

	if err := u.store.EnsureBucket(ctx, u.bucket); err != nil {
		return nil, errors.Wrap(op, err)
	}

	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, errors.E(op, errors.KindIO, err)
	}
	sort.Strings(files)

	base := filepath.Base(filepath.Clean(dir))
	keys := make([]string, 0, len(files))
	for _, file := range files {
		rel, err := filepath.Rel(dir, file)
		if err != nil {
			return nil, errors.E(op, errors.KindIO, err)
		}
		key := path.Join(u.prefix, base, filepath.ToSlash(rel))
		err = retry.Do(ctx, u.retry, func(attempt int) error {
			err := u.store.PutFile(ctx, u.bucket, key, file)
			if errors.IsKind(err, errors.KindConfig) {
				return retry.Permanent(err)
			}
			return err
		})
		if err != nil {
			return keys, errors.Wrap(op, err)
		}
		u.logger.Debug("uploaded", "bucket", u.bucket, "key", key)
		keys = append(keys, key)
	}
	return keys, nil
}
