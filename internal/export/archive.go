package export

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/talk2db/talk2db/internal/storage"
)

// Archiver keeps a copy of every exported file in an object store.
type Archiver struct {
	store storage.ObjectStore
	now   func() time.Time
	newID func() string
}

func NewArchiver(store storage.ObjectStore) *Archiver {
	return &Archiver{
		store: store,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

// Archive uploads an encoded export and returns its object key.
func (a *Archiver) Archive(ctx context.Context, format Format, data []byte) (string, error) {
	key, err := storage.BuildExportPath(a.newID(), string(format), a.now())
	if err != nil {
		return "", err
	}
	_, err = a.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{
		ContentType:        format.ContentType(),
		ContentDisposition: fmt.Sprintf("attachment; filename=%s", format.Filename()),
	})
	if err != nil {
		return "", fmt.Errorf("archive export: %w", err)
	}
	return key, nil
}
