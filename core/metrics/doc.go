// Package metrics defines the events emitted by the ledger control loop and
// the sinks that record them. A sink implements MetricsSink for closed
// windows and may implement any of the optional recorder interfaces for
// register state, anomalies, plans and plan evaluations. Sinks are created
// from configuration through the registry in factory.go; several configured
// sinks are combined into a MultiSink.
package metrics
