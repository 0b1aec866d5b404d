// Package metrics exposes Prometheus collectors for the accept server and the
// churn client.
//
// Collectors register on a caller-provided prometheus.Registerer so tests can
// use a private registry. All recording methods are safe on a nil receiver,
// which lets components treat metrics as optional.
package metrics
