package backup

import (
	"bytes"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/yourusername/unifi-ops/internal/logging"
)

// S3Destination stores artifacts in AWS S3 or S3-compatible storage.
type S3Destination struct {
	config   *DestinationConfig
	s3Client *s3.S3
}

// NewS3Destination creates a new S3 destination
func NewS3Destination(config *DestinationConfig) (*S3Destination, error) {
	awsConfig := &aws.Config{
		Region: aws.String(config.S3Region),
	}
	if config.S3AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			config.S3AccessKey,
			config.S3SecretKey,
			"",
		)
	}

	// Custom endpoint for S3-compatible storage (MinIO, DigitalOcean Spaces, etc.)
	if config.S3Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.S3Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	dest := &S3Destination{
		config:   config,
		s3Client: s3.New(sess),
	}

	logging.L().Debug("initialized s3 destination", "bucket", config.S3Bucket, "region", config.S3Region)
	return dest, nil
}

// Store uploads an artifact to S3. Controller backups are small enough
// to buffer; multipart upload is not worth it here.
func (sd *S3Destination) Store(filename string, reader io.Reader) (int64, error) {
	key := path.Join(sd.config.Path, filename)

	data, err := io.ReadAll(reader)
	if err != nil {
		return 0, fmt.Errorf("failed to read artifact data: %w", err)
	}

	_, err = sd.s3Client.PutObject(&s3.PutObjectInput{
		Bucket:        aws.String(sd.config.S3Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/octet-stream"),
		StorageClass:  aws.String("STANDARD"),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upload to S3: %w", err)
	}

	logging.L().Debug("stored artifact", "destination", "s3", "bucket", sd.config.S3Bucket, "key", key, "bytes", len(data))
	return int64(len(data)), nil
}

// Open reads an artifact from S3.
func (sd *S3Destination) Open(filename string) (io.ReadCloser, error) {
	key := path.Join(sd.config.Path, filename)

	result, err := sd.s3Client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(sd.config.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	return result.Body, nil
}

// Delete removes an artifact from S3.
func (sd *S3Destination) Delete(filename string) error {
	key := path.Join(sd.config.Path, filename)

	_, err := sd.s3Client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(sd.config.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

// List returns all artifacts in the S3 destination.
func (sd *S3Destination) List() ([]StoredFile, error) {
	prefix := sd.config.Path
	if prefix != "" && !path.IsAbs(prefix) {
		prefix = prefix + "/"
	}

	result, err := sd.s3Client.ListObjectsV2(&s3.ListObjectsV2Input{
		Bucket: aws.String(sd.config.S3Bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list S3 objects: %w", err)
	}

	var files []StoredFile
	for _, obj := range result.Contents {
		if *obj.Key == prefix || *obj.Key == prefix+"/" {
			continue
		}

		files = append(files, StoredFile{
			Filename:  path.Base(*obj.Key),
			SizeBytes: *obj.Size,
			CreatedAt: obj.LastModified.Unix(),
		})
	}

	return files, nil
}

// Type returns the destination type
func (sd *S3Destination) Type() string {
	return "s3"
}
