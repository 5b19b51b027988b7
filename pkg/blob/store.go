// Package blob wraps object storage for originals and previews.
package blob

import (
	"context"
	"strings"
	"time"
)

// Object is a fetched blob with its content type and user metadata.
type Object struct {
	Key         string
	Data        []byte
	ContentType string
	Metadata    map[string]string
}

type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// MetadataValue looks a key up case-insensitively; S3 compatible stores
// canonicalise user metadata header names.
func (o *ObjectInfo) MetadataValue(key string) string {
	for k, v := range o.Metadata {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// ObjectStore is the blob store contract. Missing objects are reported as
// errors wrapping apperrors.ErrNotFound.
type ObjectStore interface {
	Bucket() string
	Put(ctx context.Context, bucket, key string, data []byte, contentType string, metadata map[string]string) error
	Get(ctx context.Context, bucket, key string) (*Object, error)
	Stat(ctx context.Context, bucket, key string) (*ObjectInfo, error)
	Delete(ctx context.Context, bucket, key string) error
	PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
}
