// Package archive stores uploaded recordings in S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

type Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
}

// objectPutter is the slice of *s3.Client the archive uses.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Archive struct {
	api    objectPutter
	bucket string
	now    func() time.Time
}

// NewS3Archive builds a path-style client with static credentials, which is
// what MinIO and SeaweedFS expect.
func NewS3Archive(ctx context.Context, cfg Config) (*S3Archive, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("s3 endpoint and bucket are required")
	}
	endpoint := cfg.Endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String(endpoint)
	})
	return newS3Archive(client, cfg.Bucket), nil
}

func newS3Archive(api objectPutter, bucket string) *S3Archive {
	return &S3Archive{api: api, bucket: bucket, now: time.Now}
}

// Archive uploads audio under audio/<user>/<yyyy>/<mm>/<uuid><ext> and
// returns the object key.
func (a *S3Archive) Archive(ctx context.Context, userID int64, filename string, audio []byte) (string, error) {
	key := a.key(userID, filename)
	sum := sha256.Sum256(audio)
	checksum := base64.StdEncoding.EncodeToString(sum[:])
	size := int64(len(audio))

	_, err := a.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:            aws.String(a.bucket),
		Key:               aws.String(key),
		Body:              bytes.NewReader(audio),
		ContentLength:     aws.Int64(size),
		ContentType:       aws.String("audio/mp4"),
		ChecksumAlgorithm: s3types.ChecksumAlgorithmSha256,
		ChecksumSHA256:    aws.String(checksum),
		Metadata: map[string]string{
			"original-filename": path.Base(filename),
		},
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return key, nil
}

func (a *S3Archive) key(userID int64, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" {
		ext = ".m4a"
	}
	now := a.now().UTC()
	return fmt.Sprintf("audio/%d/%04d/%02d/%s%s", userID, now.Year(), int(now.Month()), uuid.NewString(), ext)
}
