package metrics

import "time"

// Histogram bucket layouts
const (
	BucketStart1ms   = 0.001 // seconds
	BucketStart100ms = 0.1   // seconds
	BucketStart100B  = 100   // bytes

	BucketFactor2  = 2
	BucketFactor4  = 4
	BucketFactor10 = 10

	BucketCount6  = 6
	BucketCount10 = 10
	BucketCount12 = 12
)

// ShutdownTimeout bounds the metrics endpoint shutdown
const ShutdownTimeout = 5 * time.Second
