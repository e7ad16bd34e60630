// Package prometheus renders engine metrics in Prometheus text exposition
// format.
//
// Counters are named siteauth_*_total. The single histogram is
// siteauth_authorize_latency_seconds. Nothing is registered globally; mount
// Handler where you want it.
package prometheus
