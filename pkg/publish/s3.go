package publish

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const defaultUploadPartSize = 16 * 1024 * 1024

// S3Uploader uploads through the S3 transfer manager, splitting large files
// into parts.
type S3Uploader struct {
	uploader *manager.Uploader
}

// NewS3Uploader loads the default AWS configuration. An empty region keeps the
// region from the environment.
func NewS3Uploader(ctx context.Context, region string) (*S3Uploader, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(cfg)
	return &S3Uploader{
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = defaultUploadPartSize
		}),
	}, nil
}

// Upload implements Uploader.
func (u *S3Uploader) Upload(ctx context.Context, obj Object) error {
	_, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(obj.Bucket),
		Key:         aws.String(obj.Key),
		Body:        obj.Body,
		ContentType: aws.String(ContentType),
		Metadata:    obj.Metadata,
	})
	return err
}
