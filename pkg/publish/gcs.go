package publish

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"go.uber.org/multierr"
	"google.golang.org/api/option"
)

// GCSUploader streams objects into Google Cloud Storage.
type GCSUploader struct {
	client *storage.Client
}

// NewGCSUploader creates a storage client. Without a credentials file the
// application default credentials are used.
func NewGCSUploader(ctx context.Context, credentialsFile string) (*GCSUploader, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &GCSUploader{client: client}, nil
}

// Upload implements Uploader.
func (u *GCSUploader) Upload(ctx context.Context, obj Object) error {
	w := u.client.Bucket(obj.Bucket).Object(obj.Key).NewWriter(ctx)
	w.ContentType = ContentType
	w.Metadata = obj.Metadata

	if _, err := io.Copy(w, obj.Body); err != nil {
		return multierr.Append(err, w.Close())
	}
	return w.Close()
}

// Close releases the client.
func (u *GCSUploader) Close() error {
	return u.client.Close()
}
