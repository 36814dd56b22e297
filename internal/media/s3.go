package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures an S3-compatible bucket such as MinIO.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// PublicURL is the URL prefix objects are served from.
	PublicURL string
}

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Gateway stores media as public objects in a bucket.
type S3Gateway struct {
	api       s3API
	bucket    string
	publicURL string
}

// NewS3Gateway loads static credentials and builds a path-style client.
func NewS3Gateway(ctx context.Context, cfg S3Config) (*S3Gateway, error) {
	if cfg.Bucket == "" || cfg.PublicURL == "" {
		return nil, errors.New("s3: bucket and public url are required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	return newS3Gateway(client, cfg.Bucket, cfg.PublicURL), nil
}

func newS3Gateway(api s3API, bucket, publicURL string) *S3Gateway {
	return &S3Gateway{
		api:       api,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

// Upload puts the file under folder/<name><ext>.
func (g *S3Gateway) Upload(ctx context.Context, file *LocalFile, folder string) (string, error) {
	f, err := os.Open(file.Path)
	if err != nil {
		return "", fmt.Errorf("open staged file: %w", err)
	}
	defer f.Close()

	key := path.Join(folder, NewObjectName(file)+file.Ext())
	_, err = g.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(g.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentType:   aws.String(file.ContentType),
		ContentLength: aws.Int64(file.Size),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put %s: %w", key, err)
	}
	return g.publicURL + "/" + key, nil
}

// Delete removes the object behind url. S3 deletes are idempotent.
func (g *S3Gateway) Delete(ctx context.Context, url, folder string) error {
	key := g.objectKey(url, folder)
	if key == "" {
		return fmt.Errorf("s3: cannot derive object key from %q", url)
	}
	if _, err := g.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return nil
}

func (g *S3Gateway) objectKey(url, folder string) string {
	if key, ok := strings.CutPrefix(url, g.publicURL+"/"); ok {
		return key
	}
	base := path.Base(url)
	if base == "." || base == "/" {
		return ""
	}
	return path.Join(folder, base)
}

var _ Gateway = (*S3Gateway)(nil)
