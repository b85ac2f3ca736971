package e2e

// KVBackend selects how the kv namespace is backed.
type KVBackend string

const (
	KVNone     KVBackend = "none"
	KVInMemory KVBackend = "memory"
	KVBadger   KVBackend = "badger"
)

// TestConfig describes one server setup the suite runs against.
type TestConfig struct {
	Name string
	KV   KVBackend

	// Objects enables the S3 namespace against Localstack.
	Objects bool

	// MaxConnections caps concurrent connections; 0 is unlimited.
	MaxConnections int

	// Bucket is filled in by the Localstack helper.
	bucket string
}

// AllConfigurations returns the setups that need no external services.
func AllConfigurations() []*TestConfig {
	return []*TestConfig{
		{Name: "builtin-only", KV: KVNone},
		{Name: "kv-memory", KV: KVInMemory},
		{Name: "kv-badger", KV: KVBadger},
		{Name: "kv-badger-limited", KV: KVBadger, MaxConnections: 2},
	}
}

// KVConfigurations returns the setups serving the kv namespace.
func KVConfigurations() []*TestConfig {
	var configs []*TestConfig
	for _, c := range AllConfigurations() {
		if c.KV != KVNone {
			configs = append(configs, c)
		}
	}
	return configs
}
