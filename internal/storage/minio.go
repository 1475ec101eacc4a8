package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/gogotex/pagesync/internal/config"
	"github.com/gogotex/pagesync/internal/document"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOArchive stores version snapshots as JSON objects under
// versions/<docID>/<versionID>.json.
type MinIOArchive struct {
	client *minio.Client
	bucket string
}

// NewMinIOArchive creates a MinIO client and ensures the bucket exists.
func NewMinIOArchive(ctx context.Context, cfg config.MinIOConfig) (*MinIOArchive, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio config missing")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}
	a := &MinIOArchive{client: mc, bucket: cfg.Bucket}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mc.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		exist, xerr := mc.BucketExists(ctx, a.bucket)
		if xerr != nil || !exist {
			return nil, fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return a, nil
}

// ObjectKey is where a version snapshot lives in the bucket.
func ObjectKey(docID, versionID string) string {
	return path.Join("versions", docID, versionID+".json")
}

// Archive uploads the snapshot.
func (a *MinIOArchive) Archive(ctx context.Context, docID string, v document.Version) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = a.client.PutObject(ctx, a.bucket, ObjectKey(docID, v.ID), bytes.NewReader(b), int64(len(b)),
		minio.PutObjectOptions{ContentType: "application/json"})
	return err
}

// Fetch reads an archived snapshot back. A missing object is reported as
// document.ErrVersionNotFound.
func (a *MinIOArchive) Fetch(ctx context.Context, docID, versionID string) (document.Version, error) {
	var v document.Version
	obj, err := a.client.GetObject(ctx, a.bucket, ObjectKey(docID, versionID), minio.GetObjectOptions{})
	if err != nil {
		return v, notFound(versionID, err)
	}
	defer obj.Close()
	if err := json.NewDecoder(obj).Decode(&v); err != nil {
		return v, notFound(versionID, err)
	}
	return v, nil
}

func notFound(versionID string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%s: %w", versionID, document.ErrVersionNotFound)
	}
	return err
}

// Ping checks that the bucket is reachable.
func (a *MinIOArchive) Ping(ctx context.Context) error {
	ok, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %s missing", a.bucket)
	}
	return nil
}
