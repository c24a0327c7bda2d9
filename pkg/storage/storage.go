// Package storage gives uniform access to local paths and s3:// URIs.
package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	lperrors "github.com/logflow/logprune/pkg/errors"
	"github.com/logflow/logprune/pkg/storage/s3"
)

// Storage reads and writes objects addressed by key.
type Storage interface {
	// Reader returns a reader for key and its size.
	Reader(ctx context.Context, key string) (io.ReadCloser, int64, error)

	// Writer returns a writer creating or replacing key.
	Writer(ctx context.Context, key string) (io.WriteCloser, error)

	// Stat returns object info.
	Stat(ctx context.Context, key string) (*FileInfo, error)

	// Scheme returns the storage scheme (file, s3).
	Scheme() string
}

// FileInfo holds object metadata.
type FileInfo struct {
	Path    string
	Size    int64
	ModTime int64
}

// Options configures remote backends.
type Options struct {
	S3 s3.Config
}

// Location is a parsed storage address.
type Location struct {
	Scheme string
	Bucket string
	Key    string
}

// String renders the location back into a path or URI.
func (l Location) String() string {
	if l.Scheme == "s3" {
		return "s3://" + l.Bucket + "/" + l.Key
	}
	return l.Key
}

// IsRemote reports whether the location is not on the local filesystem.
func (l Location) IsRemote() bool {
	return l.Scheme != "file"
}

// Parse splits a local path, file:// URI or s3://bucket/key URI.
func Parse(uri string) (Location, error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Local path (or Windows drive letter)
		return Location{Scheme: "file", Key: uri}, nil
	}

	switch u.Scheme {
	case "file":
		return Location{Scheme: "file", Key: u.Path}, nil
	case "s3":
		if u.Host == "" {
			return Location{}, lperrors.New(lperrors.CodeInvalidConfig, "s3 URI without bucket").
				WithContext("uri", uri)
		}
		return Location{Scheme: "s3", Bucket: u.Host, Key: strings.TrimPrefix(u.Path, "/")}, nil
	default:
		return Location{}, lperrors.New(lperrors.CodeUnsupportedFormat, "unsupported storage scheme").
			WithContext("scheme", u.Scheme)
	}
}

// Join appends name to a location used as a directory.
func Join(base, name string) string {
	loc, err := Parse(base)
	if err != nil || !loc.IsRemote() {
		return filepath.Join(base, name)
	}
	loc.Key = path.Join(loc.Key, name)
	return loc.String()
}

// Open returns the storage backing uri and the key within it.
func Open(ctx context.Context, uri string, opts Options) (Storage, string, error) {
	loc, err := Parse(uri)
	if err != nil {
		return nil, "", err
	}
	if loc.Scheme == "s3" {
		client, err := s3.NewClient(ctx, opts.S3)
		if err != nil {
			return nil, "", err
		}
		return &S3Storage{client: client, bucket: loc.Bucket}, loc.Key, nil
	}
	return &LocalStorage{}, loc.Key, nil
}

// Fetch makes uri available as a local file. Local paths are returned as
// is; remote objects are downloaded to a temporary file that cleanup
// removes. The temporary file keeps the object's base name so format
// detection still works.
func Fetch(ctx context.Context, uri string, opts Options) (localPath string, cleanup func(), err error) {
	loc, err := Parse(uri)
	if err != nil {
		return "", nil, err
	}
	if !loc.IsRemote() {
		return loc.Key, func() {}, nil
	}

	st, key, err := Open(ctx, uri, opts)
	if err != nil {
		return "", nil, err
	}
	rc, _, err := st.Reader(ctx, key)
	if err != nil {
		return "", nil, err
	}
	defer rc.Close()

	dir, err := os.MkdirTemp("", "logprune-*")
	if err != nil {
		return "", nil, lperrors.Wrap(err, lperrors.CodeStorageFailed, "failed to create temp dir")
	}
	cleanup = func() { os.RemoveAll(dir) }

	localPath = filepath.Join(dir, path.Base(key))
	f, err := os.Create(localPath)
	if err != nil {
		cleanup()
		return "", nil, lperrors.Wrap(err, lperrors.CodeStorageFailed, "failed to create temp file")
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		cleanup()
		return "", nil, lperrors.Wrap(err, lperrors.CodeStorageFailed, "download failed").WithContext("uri", uri)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, lperrors.Wrap(err, lperrors.CodeStorageFailed, "download failed").WithContext("uri", uri)
	}
	return localPath, cleanup, nil
}

// Create opens uri for writing.
func Create(ctx context.Context, uri string, opts Options) (io.WriteCloser, error) {
	st, key, err := Open(ctx, uri, opts)
	if err != nil {
		return nil, err
	}
	return st.Writer(ctx, key)
}

// --- Local Storage ---

// LocalStorage handles local file operations. Keys are file paths.
type LocalStorage struct{}

func (s *LocalStorage) Scheme() string { return "file" }

func (s *LocalStorage) Reader(ctx context.Context, path string) (io.ReadCloser, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, localError(err, path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, localError(err, path)
	}
	return f, info.Size(), nil
}

func (s *LocalStorage) Writer(ctx context.Context, path string) (io.WriteCloser, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, localError(err, dir)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, localError(err, path)
	}
	return f, nil
}

func (s *LocalStorage) Stat(ctx context.Context, path string) (*FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, localError(err, path)
	}
	return &FileInfo{Path: path, Size: info.Size(), ModTime: info.ModTime().Unix()}, nil
}

func localError(err error, path string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return lperrors.FileNotFound(path)
	}
	return lperrors.Wrap(err, lperrors.CodeStorageFailed, "local storage failed").WithContext("path", path)
}

// --- S3 Storage ---

// S3Storage adapts an S3 client to one bucket.
type S3Storage struct {
	client *s3.Client
	bucket string
}

func (s *S3Storage) Scheme() string { return "s3" }

func (s *S3Storage) Reader(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	return s.client.Reader(ctx, s.bucket, key)
}

func (s *S3Storage) Writer(ctx context.Context, key string) (io.WriteCloser, error) {
	return s.client.Writer(ctx, s.bucket, key, contentType(key)), nil
}

func (s *S3Storage) Stat(ctx context.Context, key string) (*FileInfo, error) {
	info, err := s.client.Stat(ctx, s.bucket, key)
	if err != nil {
		return nil, err
	}
	return &FileInfo{Path: key, Size: info.Size, ModTime: info.LastModified.Unix()}, nil
}

func contentType(key string) string {
	switch path.Ext(key) {
	case ".xes":
		return "application/xml"
	case ".json":
		return "application/json"
	case ".yaml", ".yml":
		return "application/yaml"
	default:
		return "application/octet-stream"
	}
}
