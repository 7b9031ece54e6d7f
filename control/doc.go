// Package control
// Author: momentics <momentics@gmail.com>
//
// Metrics, logging, configuration loading and debug introspection for the
// hioload-rt runtime and the servers built on it.
//
// Provides:
//   - Prometheus collectors for scheduler, reactor and connection activity
//   - zerolog logger construction from a small LogConfig
//   - Strict YAML config file decoding
//   - Named debug probes dumped on demand
package control
