// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CaptureRecordsTotal counts records read from capture sources
	CaptureRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sipflow_capture_records_total",
			Help: "Total number of records read from capture sources",
		},
		[]string{"source"},
	)

	// CaptureSkippedTotal counts captured packets that carried no usable record
	CaptureSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sipflow_capture_skipped_total",
			Help: "Total number of captured packets skipped before ingestion",
		},
		[]string{"source", "reason"},
	)

	// MessagesTotal counts ingestion results by outcome
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sipflow_messages_total",
			Help: "Total number of capture records offered to the call store",
		},
		[]string{"result"},
	)

	// CallsTotal counts calls created in the store
	CallsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sipflow_calls_total",
			Help: "Total number of calls created",
		},
	)

	// ParseTotal counts message parse attempts
	ParseTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sipflow_parse_total",
			Help: "Total number of message parse attempts",
		},
		[]string{"result"},
	)
)

// Ingestion result label values for MessagesTotal
const (
	ResultAccepted        = "accepted"
	ResultCaptureDisabled = "capture_disabled"
	ResultNoCallID        = "no_call_id"
	ResultMalformed       = "malformed_header"
	ResultIncomplete      = "incomplete_call"
)
