// Package config provides configuration management for gridframe.
//
// # Loading
//
//	cfg, err := config.LoadConfig("gridframe.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// LoadConfig starts from NewConfig defaults, overlays the YAML file and
// validates the result, so a file only needs the keys it changes.
//
// # Environment Variable Substitution
//
//	# gridframe.yaml
//	name: orders
//	storage:
//	  s3:
//	    region: eu-west-1
//	    access_key_id: ${AWS_ACCESS_KEY_ID}
//	    secret_access_key: ${AWS_SECRET_ACCESS_KEY}
//
// Unset variables substitute as the empty string.
//
// # Sections
//
//   - Fetch: placeholder row count for generated frames, cell concurrency
//   - Storage: concurrent reads per reader, HTTP timeout, S3 and GCS clients
//   - Query: pushdown switch, default result limit
//   - Observability: log level and encoding, metrics endpoint, tracing
//
// The CLI layers GRIDFRAME_* environment variables and flags on top of the
// file through viper.
package config
