// Package publish uploads finished output files to object storage. Targets
// are s3://bucket/prefix or gs://bucket/prefix URIs.
package publish

import (
	"context"
	"io"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Singularity-Coder/Reddit-at-Scale-Quarter-Billion-Rows/pkg/errors"
)

// ContentType is attached to every uploaded object.
const ContentType = "application/vnd.apache.parquet"

// Supported URI schemes.
const (
	SchemeS3  = "s3"
	SchemeGCS = "gs"
)

// Target is a parsed publish URI.
type Target struct {
	Scheme string
	Bucket string
	Prefix string
}

// ParseURI parses s3://bucket/prefix or gs://bucket/prefix.
func ParseURI(uri string) (Target, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return Target{}, errors.Wrap(err, errors.ErrorTypeConfig, "invalid publish uri")
	}
	if u.Scheme != SchemeS3 && u.Scheme != SchemeGCS {
		return Target{}, errors.Newf(errors.ErrorTypeConfig, "publish uri %q must use s3:// or gs://", uri)
	}
	if u.Host == "" {
		return Target{}, errors.Newf(errors.ErrorTypeConfig, "publish uri %q has no bucket", uri)
	}
	return Target{
		Scheme: u.Scheme,
		Bucket: u.Host,
		Prefix: strings.Trim(u.Path, "/"),
	}, nil
}

// Key returns the object key for a file at rel below the prefix.
func (t Target) Key(rel string) string {
	rel = strings.TrimLeft(path.Clean("/"+strings.ReplaceAll(rel, "\\", "/")), "/")
	if t.Prefix == "" {
		return rel
	}
	return t.Prefix + "/" + rel
}

// String renders the target as a URI.
func (t Target) String() string {
	if t.Prefix == "" {
		return t.Scheme + "://" + t.Bucket
	}
	return t.Scheme + "://" + t.Bucket + "/" + t.Prefix
}

// Object is one upload request.
type Object struct {
	Bucket   string
	Key      string
	Body     io.Reader
	Size     int64
	Metadata map[string]string
}

// Uploader stores objects in one backend.
type Uploader interface {
	Upload(ctx context.Context, obj Object) error
}

// Options configures the built-in uploaders.
type Options struct {
	Region          string
	CredentialsFile string
	Logger          *zap.Logger
	// Uploader replaces the backend chosen from the URI scheme.
	Uploader Uploader
}

// Publisher copies files from a filesystem to a Target.
type Publisher struct {
	fs       afero.Fs
	target   Target
	uploader Uploader
	logger   *zap.Logger
}

// Result describes one uploaded file.
type Result struct {
	URI      string        `json:"uri"`
	Bytes    int64         `json:"bytes"`
	Duration time.Duration `json:"duration"`
}

// New parses uri and prepares the matching backend.
func New(ctx context.Context, fs afero.Fs, uri string, opts Options) (*Publisher, error) {
	target, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	uploader := opts.Uploader
	if uploader == nil {
		switch target.Scheme {
		case SchemeS3:
			uploader, err = NewS3Uploader(ctx, opts.Region)
		case SchemeGCS:
			uploader, err = NewGCSUploader(ctx, opts.CredentialsFile)
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize "+target.Scheme+" client")
		}
	}

	return &Publisher{
		fs:       fs,
		target:   target,
		uploader: uploader,
		logger:   logger.With(zap.String("target", target.String())),
	}, nil
}

// Target returns the parsed destination.
func (p *Publisher) Target() Target { return p.target }

// Publish uploads localPath as rel below the target prefix.
func (p *Publisher) Publish(ctx context.Context, localPath, rel string, rows int64) (Result, error) {
	start := time.Now()
	key := p.target.Key(rel)
	uri := p.target.Scheme + "://" + p.target.Bucket + "/" + key

	f, err := p.fs.Open(localPath)
	if err != nil {
		return Result{}, errors.DestinationWrite(uri, err)
	}
	info, err := f.Stat()
	if err != nil {
		return Result{}, multierr.Append(errors.DestinationWrite(uri, err), f.Close())
	}

	err = p.uploader.Upload(ctx, Object{
		Bucket: p.target.Bucket,
		Key:    key,
		Body:   f,
		Size:   info.Size(),
		Metadata: map[string]string{
			"rows":    strconv.FormatInt(rows, 10),
			"created": time.Now().UTC().Format(time.RFC3339),
		},
	})
	err = multierr.Append(err, f.Close())
	if err != nil {
		return Result{}, errors.DestinationWrite(uri, err)
	}

	res := Result{URI: uri, Bytes: info.Size(), Duration: time.Since(start)}
	p.logger.Info("output published",
		zap.String("uri", uri),
		zap.Int64("bytes", res.Bytes),
		zap.Duration("duration", res.Duration))
	return res, nil
}
