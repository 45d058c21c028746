// Package prometheus renders goAccount engine metrics in Prometheus text
// exposition format.
//
// [NewPrometheusExporter] wraps an engine and exposes an [http.Handler].
// Counter names are prefixed goaccount_ and end in _total; the single
// histogram is goaccount_login_latency_seconds. Nothing is registered in a
// global registry; callers mount the handler.
package prometheus
