// Package storage describes the object store that keeps archived exports.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key                string
	Size               int64
	ETag               string
	ContentType        string
	ContentDisposition string
	LastModified       time.Time
}

type PutOptions struct {
	ContentType        string
	ContentDisposition string
}

type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	// Get returns the object body together with its metadata. The caller closes the body.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
}
