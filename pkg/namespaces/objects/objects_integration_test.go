//go:build integration

package objects

import (
	"context"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStore_Integration runs the store against Localstack.
//
//	docker run --rm -p 4566:4566 localstack/localstack
//	go test -tags=integration ./pkg/namespaces/objects/...
func TestStore_Integration(t *testing.T) {
	ctx := context.Background()

	endpoint := os.Getenv("LOCALSTACK_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://localhost:4566"
	}

	client, err := NewClient(ctx, Config{
		Region:          "us-east-1",
		Endpoint:        endpoint,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
	require.NoError(t, err)

	bucket := "podsock-test-bucket"
	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	require.NoError(t, err)

	store, err := NewStore(ctx, StoreConfig{Client: client, Bucket: bucket, KeyPrefix: "it/"})
	require.NoError(t, err)

	t.Cleanup(func() {
		keys, _ := store.List(ctx, "")
		for _, k := range keys {
			_ = store.Delete(ctx, k)
		}
		_, _ = client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)})
	})

	_, err = store.Put(ctx, "greeting", []byte("hello"))
	require.NoError(t, err)

	body, err := store.Get(ctx, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))

	keys, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"greeting"}, keys)

	require.NoError(t, store.Delete(ctx, "greeting"))

	_, err = store.Get(ctx, "greeting")
	assert.ErrorIs(t, err, ErrNotFound)
}
