// Package config provides configuration loading for dbpool.
//
// # Key Features
//
// - Config: a single structure with Pool, Logging and Workload sections
// - Environment variable substitution with ${VAR_NAME} syntax
// - Defaults applied before the file is decoded, validation after
//
// # Usage
//
//	cfg, err := config.Load("dbpool.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Environment Variable Substitution
//
//	# dbpool.yaml
//	pool:
//	  name: orders
//	  driver: pgx
//	  dsn: postgres://db.internal:5432/orders
//	  user: ${DB_USERNAME}
//	  password: ${DB_PASSWORD}
//	  capacity: 8
//	logging:
//	  level: debug
//
// Keys missing from the file keep their Default() values. The password is
// never serialized to JSON.
package config
