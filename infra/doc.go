// Package infra holds the adapters around the ledger and the planner: the
// Modbus inverter poller, record stores, MQTT publishing, metrics sinks and
// error reporting. They depend on core packages, never the reverse.
package infra
