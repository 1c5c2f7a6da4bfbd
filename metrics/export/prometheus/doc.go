// Package prometheus provides Prometheus collectors for twofa metrics.
//
// [NewPrometheusExporter] accepts a [twofa.Engine] and exposes an [http.Handler]
// that renders all twofa counters and histograms in Prometheus text exposition format.
// Counter names are prefixed twofa_*_total; the single histogram is
// twofa_authenticate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate engine state.
package prometheus
