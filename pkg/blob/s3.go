package blob

import (
	"bytes"
	"context"
	"io/ioutil"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/loadforge/loadforge/pkg/api"
)

// S3 is the production api.BlobClient, backed by an S3 bucket. namespace
// maps to the bucket; name maps to the S3 key. This uses the same
// aws-sdk-go module the Container Client's ECS backend depends on, just a
// different service client.
type S3 struct {
	client     *s3.S3
	uploader   *s3manager.Uploader
	downloader *s3manager.Downloader
}

var _ api.BlobClient = (*S3)(nil)

// NewS3 builds an S3-backed blob client from the ambient AWS session
// (shared credentials file, environment, or instance role).
func NewS3(sess *session.Session) *S3 {
	return &S3{
		client:     s3.New(sess),
		uploader:   s3manager.NewUploader(sess),
		downloader: s3manager.NewDownloader(sess),
	}
}

func (s *S3) Put(ctx context.Context, namespace, name string, data []byte) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(namespace),
		Key:    aws.String(name),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return api.NewError(api.ErrBlobUnavailable, "s3 put failed for "+namespace+"/"+name, err)
	}
	return nil
}

func (s *S3) Get(ctx context.Context, namespace, name string) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(namespace),
		Key:    aws.String(name),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && (aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound") {
			return nil, api.NewError(api.ErrBlobNotFound, "object not found: "+namespace+"/"+name, err)
		}
		return nil, api.NewError(api.ErrBlobUnavailable, "s3 get failed for "+namespace+"/"+name, err)
	}
	defer out.Body.Close()

	data, err := ioutil.ReadAll(out.Body)
	if err != nil {
		return nil, api.NewError(api.ErrBlobUnavailable, "s3 get body read failed for "+namespace+"/"+name, err)
	}
	return data, nil
}

func (s *S3) List(ctx context.Context, namespace, prefix string) ([]string, error) {
	var names []string
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(namespace),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			names = append(names, aws.StringValue(obj.Key))
		}
		return true
	})
	if err != nil {
		return nil, api.NewError(api.ErrBlobUnavailable, "s3 list failed for "+namespace+"/"+prefix, err)
	}
	return names, nil
}

func (s *S3) Exists(ctx context.Context, namespace, name string) (bool, error) {
	_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(namespace),
		Key:    aws.String(name),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && (aerr.Code() == "NotFound" || aerr.Code() == s3.ErrCodeNoSuchKey) {
			return false, nil
		}
		return false, api.NewError(api.ErrBlobUnavailable, "s3 head failed for "+namespace+"/"+name, err)
	}
	return true, nil
}
