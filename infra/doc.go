// Package infra holds the adapters behind the core interfaces: the dataset
// store, the MQTT publisher, the language model backend and the metrics
// sinks. Nothing under core imports these packages.
package infra
