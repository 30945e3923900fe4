package storage

import (
	"bytes"
	"context"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"

	"github.com/iota-uz/wholesale/pkg/configuration"
)

type S3 struct {
	client s3iface.S3API
	bucket string
}

func NewS3(opts *configuration.StorageOptions) (*S3, error) {
	cfg := &aws.Config{
		Region:           aws.String(opts.S3Region),
		DisableSSL:       aws.Bool(!opts.S3UseSSL),
		S3ForcePathStyle: aws.Bool(opts.S3Endpoint != ""),
	}
	if opts.S3Endpoint != "" {
		cfg.Endpoint = aws.String(opts.S3Endpoint)
	}
	if opts.S3AccessKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(opts.S3AccessKey, opts.S3SecretKey, "")
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create s3 session")
	}
	return NewS3WithClient(s3.New(sess), opts.S3Bucket), nil
}

func NewS3WithClient(client s3iface.S3API, bucket string) *S3 {
	return &S3{client: client, bucket: bucket}
}

func (s *S3) Save(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/csv"),
	})
	return errors.Wrapf(err, "put s3://%s/%s", s.bucket, key)
}

func (s *S3) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return nil, errors.Wrap(ErrNotFound, key)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get s3://%s/%s", s.bucket, key)
	}
	return out.Body, nil
}

func (s *S3) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "head s3://%s/%s", s.bucket, key)
	}
	return true, nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return errors.Wrapf(err, "delete s3://%s/%s", s.bucket, key)
}

func isNotFound(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchKey, "NotFound":
		return true
	}
	return false
}
