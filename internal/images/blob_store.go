package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/spf13/afero"
)

var errMissingFilesystem = errors.New("images: filesystem is required")

// BlobStore addresses image blobs by slash-separated path.
type BlobStore interface {
	Exists(ctx context.Context, blobPath string) (bool, error)
	Put(ctx context.Context, blobPath string, content io.Reader) error
	Remove(ctx context.Context, blobPath string) error
}

// FilesystemStore keeps blobs as files under an afero filesystem.
type FilesystemStore struct {
	fs afero.Fs
}

// NewFilesystemStore constructs a BlobStore rooted at the provided filesystem.
func NewFilesystemStore(fs afero.Fs) (*FilesystemStore, error) {
	if fs == nil {
		return nil, errMissingFilesystem
	}
	return &FilesystemStore{fs: fs}, nil
}

// NewDirectoryStore roots a FilesystemStore at a directory on the host, creating it when absent.
func NewDirectoryStore(root string) (*FilesystemStore, error) {
	host := afero.NewOsFs()
	if err := host.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("images: create blob root %s: %w", root, err)
	}
	return NewFilesystemStore(afero.NewBasePathFs(host, root))
}

// Exists reports whether the blob is present.
func (store *FilesystemStore) Exists(ctx context.Context, blobPath string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return afero.Exists(store.fs, blobPath)
}

// Put writes the blob, replacing any previous content.
func (store *FilesystemStore) Put(ctx context.Context, blobPath string, content io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := store.fs.MkdirAll(path.Dir(blobPath), 0o755); err != nil {
		return err
	}
	file, err := store.fs.OpenFile(blobPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, content); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Remove deletes the blob. Removing an absent blob is an error.
func (store *FilesystemStore) Remove(ctx context.Context, blobPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return store.fs.Remove(blobPath)
}
