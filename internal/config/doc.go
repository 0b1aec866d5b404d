// Package config holds the startup configuration of lb-accept and lb-churn.
//
// Values come from three layers, later layers winning: built-in defaults, an
// optional YAML file, and command-line flags. Durations are expressed in
// seconds (floating point) in both the file and the flags.
//
// Example lb-churn file:
//
//	host: 10.0.1.2
//	port: 3000
//	max_connections: 10
//	connection_timeout: 5.0
//	runtime: 30.0
//	num_threads: 4
//	seed: 1234
package config
