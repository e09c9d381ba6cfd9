// Package attachments stores files uploaded alongside a policy (logos,
// reference documents, signed scans) in S3-compatible object storage.
package attachments

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds object storage connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Object describes a stored attachment.
type Object struct {
	Key          string    `json:"key"`
	Filename     string    `json:"filename"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type"`
	LastModified time.Time `json:"last_modified"`
}

// Store reads and writes policy attachments.
type Store struct {
	client *minio.Client
	bucket string
}

// New connects to object storage and ensures the bucket exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("attachments: connect %s: %w", cfg.Endpoint, err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("attachments: check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("attachments: create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// objectKey builds "{policyID}/{timestamp}-{filename}". The timestamp keeps
// re-uploads of the same filename from overwriting each other.
func objectKey(policyID, filename string) string {
	base := path.Base(strings.TrimSpace(filename))
	if base == "" || base == "." || base == "/" {
		base = "attachment"
	}
	return fmt.Sprintf("%s/%d-%s", policyID, time.Now().UTC().UnixMilli(), base)
}

// Put uploads an attachment and returns its storage key.
func (s *Store) Put(ctx context.Context, policyID, filename, contentType string, r io.Reader, size int64) (string, error) {
	key := objectKey(policyID, filename)
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"policy-id": policyID,
			"filename":  path.Base(filename),
		},
	})
	if err != nil {
		return "", fmt.Errorf("attachments: put %s: %w", key, err)
	}
	return key, nil
}

// Get streams an attachment. The caller must close the returned reader.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, Object, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, Object{}, fmt.Errorf("attachments: get %s: %w", key, err)
	}
	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, Object{}, fmt.Errorf("attachments: stat %s: %w", key, err)
	}
	info := Object{
		Key:          key,
		Filename:     filenameFromKey(key),
		Size:         stat.Size,
		ContentType:  stat.ContentType,
		LastModified: stat.LastModified,
	}
	return obj, info, nil
}

// List returns the attachments stored under a policy.
func (s *Store) List(ctx context.Context, policyID string) ([]Object, error) {
	objects := []Object{}
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    policyID + "/",
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, fmt.Errorf("attachments: list %s: %w", policyID, info.Err)
		}
		objects = append(objects, Object{
			Key:          info.Key,
			Filename:     filenameFromKey(info.Key),
			Size:         info.Size,
			ContentType:  info.ContentType,
			LastModified: info.LastModified,
		})
	}
	return objects, nil
}

// Delete removes an attachment.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("attachments: delete %s: %w", key, err)
	}
	return nil
}

// filenameFromKey strips the "{policyID}/{timestamp}-" prefix.
func filenameFromKey(key string) string {
	base := path.Base(key)
	if i := strings.IndexByte(base, '-'); i > 0 && i < len(base)-1 {
		if isDigits(base[:i]) {
			return base[i+1:]
		}
	}
	return base
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
