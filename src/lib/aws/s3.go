package aws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"olympia/src/lib"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const s3RefScheme = "s3://"

var ErrNotS3Ref = errors.New("not an s3 reference")

// S3MediaStore writes evidence objects to a bucket and returns s3:// refs.
type S3MediaStore struct {
	Bucket string
	client *s3.Client
}

func NewS3MediaStore(bucket string) (*S3MediaStore, error) {
	client := lib.AWSGetS3Client()
	if client == nil {
		return nil, errors.New("s3 client unavailable")
	}
	return &S3MediaStore{Bucket: bucket, client: client}, nil
}

func (s *S3MediaStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		log.Printf("Could not put object to S3 bucket: %s\n", err.Error())
		return "", err
	}
	err = s3.NewObjectExistsWaiter(s.client).Wait(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	}, time.Minute)
	if err != nil {
		log.Printf("Failed attempt to wait for object %s to exist: %s\n", key, err.Error())
		return "", err
	}
	log.Printf("Added object '%s' to bucket '%s'", key, s.Bucket)
	return fmt.Sprintf("%s%s/%s", s3RefScheme, s.Bucket, key), nil
}

func (s *S3MediaStore) Delete(ctx context.Context, ref string) error {
	bucket, key, err := parseS3Ref(ref)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return err
}

// PresignRef returns a short-lived GET url for a stored object.
func (s *S3MediaStore) PresignRef(ctx context.Context, ref string) (string, error) {
	bucket, key, err := parseS3Ref(ref)
	if err != nil {
		return "", err
	}
	pre := s3.NewPresignClient(s.client)
	r, err := pre.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, func(po *s3.PresignOptions) {
		po.Expires = time.Duration(3600 * time.Second)
	})
	if err != nil {
		log.Printf("Could not generate presigned URL for object [%s]: %s\n", key, err.Error())
		return "", err
	}
	return r.URL, nil
}

func parseS3Ref(ref string) (bucket string, key string, err error) {
	if !strings.HasPrefix(ref, s3RefScheme) {
		return "", "", ErrNotS3Ref
	}
	bucket, key, ok := strings.Cut(strings.TrimPrefix(ref, s3RefScheme), "/")
	if !ok || bucket == "" || key == "" {
		return "", "", ErrNotS3Ref
	}
	return bucket, key, nil
}
