package e2e

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/podsock/pkg/namespaces/objects"
)

// LocalstackHelper manages buckets on a Localstack S3 endpoint.
type LocalstackHelper struct {
	T        *testing.T
	Endpoint string
	Client   *s3.Client
	Buckets  []string
}

func localstackEndpoint() string {
	if endpoint := os.Getenv("LOCALSTACK_ENDPOINT"); endpoint != "" {
		return endpoint
	}
	return "http://localhost:4566"
}

// objectsOptions returns the namespaces.objects option map for bucket.
func objectsOptions(bucket string) map[string]any {
	return map[string]any{
		"enabled":           true,
		"bucket":            bucket,
		"region":            "us-east-1",
		"endpoint":          localstackEndpoint(),
		"access_key_id":     "test",
		"secret_access_key": "test",
		"max_retries":       1,
	}
}

func NewLocalstackHelper(t *testing.T) *LocalstackHelper {
	t.Helper()

	endpoint := localstackEndpoint()
	client, err := objects.NewClient(context.Background(), objects.Config{
		Region:          "us-east-1",
		Endpoint:        endpoint,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		MaxRetries:      1,
	})
	if err != nil {
		t.Fatalf("Failed to create S3 client: %v", err)
	}

	return &LocalstackHelper{T: t, Endpoint: endpoint, Client: client}
}

// CreateBucket creates a bucket and registers it for cleanup.
func (lh *LocalstackHelper) CreateBucket(ctx context.Context, bucketName string) error {
	lh.T.Helper()

	_, err := lh.Client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucketName)})
	if err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucketName, err)
	}

	lh.Buckets = append(lh.Buckets, bucketName)
	return nil
}

// Cleanup empties and removes every bucket created by the helper.
func (lh *LocalstackHelper) Cleanup() {
	ctx := context.Background()

	for _, bucketName := range lh.Buckets {
		paginator := s3.NewListObjectsV2Paginator(lh.Client, &s3.ListObjectsV2Input{Bucket: aws.String(bucketName)})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				break
			}
			for _, obj := range page.Contents {
				_, _ = lh.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
					Bucket: aws.String(bucketName),
					Key:    obj.Key,
				})
			}
		}

		_, _ = lh.Client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucketName)})
	}
}

// CheckLocalstackAvailable reports whether the endpoint answers ListBuckets.
func CheckLocalstackAvailable(t *testing.T) bool {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewLocalstackHelper(t).Client.ListBuckets(ctx, &s3.ListBucketsInput{})
	return err == nil
}
