package goAccount

import internalmetrics "github.com/MrEthical07/goAccount/internal/metrics"

// MetricsSnapshot is a point-in-time copy of the engine counters. Counters
// are empty when metrics are disabled.
type MetricsSnapshot = internalmetrics.Snapshot

// HistBucketCount is the number of login latency buckets: <=5ms, <=10ms,
// <=25ms, <=50ms, <=100ms, <=250ms, <=500ms and +Inf.
const HistBucketCount = internalmetrics.HistBucketCount
