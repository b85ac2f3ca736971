package e2e

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

func runOnConfigs(t *testing.T, configs []*TestConfig, testFunc func(t *testing.T, tc *TestContext)) {
	t.Helper()

	for _, config := range configs {
		t.Run(config.Name, func(t *testing.T) {
			tc := NewTestContext(t, config)
			defer tc.Cleanup()

			testFunc(t, tc)
		})
	}
}

func runOnAllConfigs(t *testing.T, testFunc func(t *testing.T, tc *TestContext)) {
	t.Helper()
	runOnConfigs(t, AllConfigurations(), testFunc)
}

func runOnKVConfigs(t *testing.T, testFunc func(t *testing.T, tc *TestContext)) {
	t.Helper()
	runOnConfigs(t, KVConfigurations(), testFunc)
}

// runOnS3Configs runs testFunc against a server serving the objects namespace
// on a fresh Localstack bucket.
func runOnS3Configs(t *testing.T, testFunc func(t *testing.T, tc *TestContext)) {
	t.Helper()

	if !CheckLocalstackAvailable(t) {
		t.Skip("Localstack not available, skipping S3 tests")
	}

	helper := NewLocalstackHelper(t)
	defer helper.Cleanup()

	bucket := fmt.Sprintf("podsock-e2e-%d", time.Now().UnixNano())
	if err := helper.CreateBucket(context.Background(), bucket); err != nil {
		t.Fatalf("Failed to create bucket: %v", err)
	}

	config := &TestConfig{Name: "objects-s3", KV: KVInMemory, Objects: true, bucket: bucket}
	runOnConfigs(t, []*TestConfig{config}, testFunc)
}

// jsonArgs renders string args as a JSON array.
func jsonArgs(args ...string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = fmt.Sprintf("%q", a)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}
