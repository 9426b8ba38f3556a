package backup

import (
	"fmt"
	"io"
	"log"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/TheGojiOG/vuserver/internal/config"
)

// S3Destination stores backups in AWS S3 or S3-compatible storage
type S3Destination struct {
	bucket   string
	prefix   string
	client   s3iface.S3API
	uploader *s3manager.Uploader
}

// NewS3Destination creates a new S3 destination
func NewS3Destination(cfg config.BackupDestinationConfig) (*S3Destination, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 destination requires a bucket")
	}

	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
	}

	// Fall back to the default credential chain when no static keys are set
	if cfg.AccessKeyID != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	// Custom endpoint for S3-compatible storage (MinIO, DigitalOcean Spaces, etc.)
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	log.Printf("[S3Dest] Initialized S3 destination: bucket=%s, region=%s", cfg.Bucket, cfg.Region)
	return newS3DestinationWithClient(s3.New(sess), cfg.Bucket, cfg.Prefix), nil
}

func newS3DestinationWithClient(client s3iface.S3API, bucket, prefix string) *S3Destination {
	return &S3Destination{
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		client:   client,
		uploader: s3manager.NewUploaderWithClient(client),
	}
}

func (sd *S3Destination) key(filename string) string {
	return path.Join(sd.prefix, path.Base(filename))
}

// Upload streams a backup file to S3, using multipart upload for large archives
func (sd *S3Destination) Upload(filename string, reader io.Reader, sizeBytes int64) error {
	key := sd.key(filename)
	log.Printf("[S3Dest] Uploading %s to s3://%s/%s (%d bytes)", filename, sd.bucket, key, sizeBytes)

	contentType := "application/gzip"
	if detectCompressionFromFilename(filename).Type == "none" {
		contentType = "application/x-tar"
	}

	_, err := sd.uploader.Upload(&s3manager.UploadInput{
		Bucket:       aws.String(sd.bucket),
		Key:          aws.String(key),
		Body:         reader,
		ContentType:  aws.String(contentType),
		StorageClass: aws.String(s3.StorageClassStandard),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	log.Printf("[S3Dest] Upload complete: %s", filename)
	return nil
}

// Download downloads a backup file from S3
func (sd *S3Destination) Download(filename string, writer io.Writer) error {
	key := sd.key(filename)
	log.Printf("[S3Dest] Downloading %s from s3://%s/%s", filename, sd.bucket, key)

	result, err := sd.client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(sd.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer result.Body.Close()

	if _, err := io.Copy(writer, result.Body); err != nil {
		return fmt.Errorf("failed to read S3 object: %w", err)
	}

	log.Printf("[S3Dest] Download complete: %s", filename)
	return nil
}

// Delete removes a backup file from S3
func (sd *S3Destination) Delete(filename string) error {
	key := sd.key(filename)
	log.Printf("[S3Dest] Deleting s3://%s/%s", sd.bucket, key)

	_, err := sd.client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(sd.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}

	log.Printf("[S3Dest] Delete complete: %s", filename)
	return nil
}

// List returns all backup files under the prefix
func (sd *S3Destination) List() ([]BackupFile, error) {
	prefix := sd.prefix
	if prefix != "" {
		prefix += "/"
	}

	var files []BackupFile
	err := sd.client.ListObjectsV2Pages(&s3.ListObjectsV2Input{
		Bucket: aws.String(sd.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			key := aws.StringValue(obj.Key)
			if key == prefix || strings.HasSuffix(key, "/") {
				continue
			}
			files = append(files, BackupFile{
				Filename:  path.Base(key),
				SizeBytes: aws.Int64Value(obj.Size),
				CreatedAt: aws.TimeValue(obj.LastModified).Unix(),
			})
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list S3 objects: %w", err)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].CreatedAt > files[j].CreatedAt
	})
	return files, nil
}

// GetType returns the destination type
func (sd *S3Destination) GetType() string {
	return "s3"
}

// Location returns the s3:// URL of the prefix
func (sd *S3Destination) Location() string {
	return "s3://" + path.Join(sd.bucket, sd.prefix)
}
