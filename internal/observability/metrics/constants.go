// Package metrics provides constants used across metric definitions.
package metrics

import "time"

// Metric namespace shared by every cedar-go collector.
const Namespace = "cedar"

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	// StatusStale marks a background result dropped because the user moved on.
	StatusStale = "stale"
	// StatusCached marks a result served from a cache.
	StatusCached = "cached"
	// StatusSuppressed marks a store event the controller recognised as its own echo.
	StatusSuppressed = "suppressed"
)

// Operation label values.
const (
	OpStoreEvent = "store_event"
	OpReconcile  = "reconcile"
	OpEdit       = "edit"
	OpFilter     = "filter"
	OpSelection  = "selection"
	OpReview     = "review"
	OpFlush      = "flush"
	OpRecovery   = "recovery"
	OpLoad       = "load"
	OpSave       = "save"
	OpBackup     = "backup"
	OpConvert    = "convert"
	OpInfer      = "infer"
)

// Histogram bucket configuration constants.
const (
	// BucketStart100us is the starting bucket for 0.1ms histograms (0.1ms to ~400ms range).
	BucketStart100us = 0.0001
	// BucketStart1ms is the starting bucket for 1ms histograms (1ms to ~1s range).
	BucketStart1ms = 0.001
	// BucketStart100ms is the starting bucket for 100ms histograms (100ms to ~100s range).
	BucketStart100ms = 0.1

	BucketFactor2 = 2

	BucketCount12 = 12
	BucketCount15 = 15
)

// ShutdownTimeout is the timeout for stopping the metrics endpoint.
const ShutdownTimeout = 5 * time.Second
