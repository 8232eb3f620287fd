package upload

import (
	"bytes"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/cenkalti/backoff/v4"
)

const segmentContentType = "video/mp2t"

// S3Sink uploads segments to an S3 bucket. Transient transport errors are
// retried with a short constant backoff; the assembler above this sink never
// retries, so bounded retry here is the only hardening applied to uploads.
type S3Sink struct {
	uploader *s3manager.Uploader
	bucket   string
}

// NewS3Sink builds a sink for the given region and bucket using the default
// AWS credential chain.
func NewS3Sink(region, bucket string) *S3Sink {
	sess := session.Must(session.NewSession(&aws.Config{
		Region: aws.String(region),
	}))
	return &S3Sink{
		uploader: s3manager.NewUploader(sess),
		bucket:   bucket,
	}
}

// Upload stores the payload under key and returns the object location.
func (s *S3Sink) Upload(data []byte, key string) (string, error) {
	var location string
	op := func() error {
		out, err := s.uploader.Upload(&s3manager.UploadInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(segmentContentType),
		})
		if err != nil {
			return err
		}
		location = out.Location
		return nil
	}
	retry := backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), 2)
	if err := backoff.Retry(op, retry); err != nil {
		return "", fmt.Errorf("upload segment to s3: %w", err)
	}
	return location, nil
}
