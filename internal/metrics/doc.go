// Package metrics exposes the outcome of a snapshot run as Prometheus
// gauges written in the node_exporter textfile-collector format.
//
// A cron-driven tool exits before anything could scrape it, so each run
// builds its own registry and writes it to a .prom file that the host's
// node_exporter picks up:
//
//	snapkeep run --metrics-file /var/lib/node_exporter/textfile/snapkeep.prom
package metrics
