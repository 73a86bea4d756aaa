package storage

import (
	"fmt"
	"strings"
	"time"
)

// Backend names accepted by STORAGE_BACKEND.
const (
	BackendSupabase  = "supabase"
	BackendPostgres  = "postgres"
	BackendBigQuery  = "bigquery"
	BackendFirestore = "firestore"
	BackendGCS       = "gcs"
	BackendPubSub    = "pubsub"
	BackendRedis     = "redis"
	BackendDynamoDB  = "dynamodb"
)

// Backends lists every supported backend name.
func Backends() []string {
	return []string{
		BackendSupabase, BackendPostgres, BackendBigQuery, BackendFirestore,
		BackendGCS, BackendPubSub, BackendRedis, BackendDynamoDB,
	}
}

// Config selects and configures the storage backend.
type Config struct {
	Backend       string        `env:"STORAGE_BACKEND" envDefault:"supabase"`
	Table         string        `env:"STORAGE_TABLE" envDefault:"stream_data"`
	InsertTimeout time.Duration `env:"STORAGE_INSERT_TIMEOUT" envDefault:"0s"`
	// Verify probes the backend at startup so that bad credentials are fatal.
	Verify bool `env:"STORAGE_VERIFY" envDefault:"true"`

	Supabase SupabaseConfig
	Postgres PostgresConfig
	GCP      GCPConfig
	Redis    RedisConfig
	DynamoDB DynamoDBConfig
}

// SupabaseConfig holds the PostgREST endpoint and service key.
type SupabaseConfig struct {
	URL string `env:"SUPABASE_URL"`
	Key string `env:"SUPABASE_KEY"`
}

// PostgresConfig holds the connection string for a direct Postgres backend.
type PostgresConfig struct {
	DSN string `env:"POSTGRES_DSN"`
}

// GCPConfig is shared by the Google Cloud backends.
type GCPConfig struct {
	ProjectID       string `env:"GCP_PROJECT_ID"`
	CredentialsFile string `env:"GCP_CREDENTIALS_FILE"`
	DatasetID       string `env:"BQ_DATASET_ID"`
	Bucket          string `env:"GCS_BUCKET"`
	ObjectPrefix    string `env:"GCS_OBJECT_PREFIX"`
	TopicID         string `env:"PUBSUB_TOPIC_ID"`
}

// RedisConfig holds the configuration for the Redis client.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// DynamoDBConfig holds the AWS region and an optional endpoint override.
type DynamoDBConfig struct {
	Region   string `env:"AWS_REGION"`
	Endpoint string `env:"DYNAMODB_ENDPOINT"`
}

// Validate checks that the variables required by the selected backend are set.
// The error names the first missing variable.
func (c *Config) Validate() error {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if c.Table == "" {
		return missing("STORAGE_TABLE")
	}
	if c.InsertTimeout < 0 {
		return fmt.Errorf("STORAGE_INSERT_TIMEOUT cannot be negative, got %s", c.InsertTimeout)
	}

	var required []struct{ name, value string }
	req := func(name, value string) {
		required = append(required, struct{ name, value string }{name, value})
	}

	switch c.Backend {
	case BackendSupabase:
		req("SUPABASE_URL", c.Supabase.URL)
		req("SUPABASE_KEY", c.Supabase.Key)
	case BackendPostgres:
		req("POSTGRES_DSN", c.Postgres.DSN)
	case BackendBigQuery:
		req("GCP_PROJECT_ID", c.GCP.ProjectID)
		req("BQ_DATASET_ID", c.GCP.DatasetID)
	case BackendFirestore:
		req("GCP_PROJECT_ID", c.GCP.ProjectID)
	case BackendGCS:
		req("GCS_BUCKET", c.GCP.Bucket)
	case BackendPubSub:
		req("GCP_PROJECT_ID", c.GCP.ProjectID)
		req("PUBSUB_TOPIC_ID", c.GCP.TopicID)
	case BackendRedis:
		req("REDIS_ADDR", c.Redis.Addr)
	case BackendDynamoDB:
		req("AWS_REGION", c.DynamoDB.Region)
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q, expected one of %s", c.Backend, strings.Join(Backends(), ", "))
	}

	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return missing(r.name)
		}
	}
	return nil
}

func missing(name string) error {
	return fmt.Errorf("missing required environment variable %s", name)
}
