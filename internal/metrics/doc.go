// Package metrics collects latency measurements for the bench command.
//
// The central [Collector] type aggregates one sample per packet from all
// workers into an HdrHistogram:
//
//	collector := metrics.NewCollector()
//	collector.RecordRequest(latency, len(payload), err)
//	stats := collector.Stats(elapsed)
//
// # Statistics
//
// [Stats] carries packet counts, bytes produced, latency percentiles
// (P50, P90, P95, P99) and packets per second. Failures are grouped by a
// human readable label; [FlattenErrors] turns that map into sorted rows.
//
// Collector is safe for concurrent use.
package metrics
