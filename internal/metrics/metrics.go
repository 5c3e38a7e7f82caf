package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Marks counts accepted ledger writes.
	Marks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edutrack",
		Subsystem: "attendance",
		Name:      "marks_total",
		Help:      "Attendance entries written, by method and status.",
	}, []string{"method", "status"})

	// RejectedMarks counts self-marks refused before anything was written.
	RejectedMarks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edutrack",
		Subsystem: "attendance",
		Name:      "rejected_marks_total",
		Help:      "Self-marks rejected, by reason.",
	}, []string{"reason"})

	CodesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "edutrack",
		Subsystem: "code",
		Name:      "issued_total",
		Help:      "Attendance codes issued.",
	})

	CodeValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edutrack",
		Subsystem: "code",
		Name:      "validations_total",
		Help:      "Code validations, by result.",
	}, []string{"result"})
)
