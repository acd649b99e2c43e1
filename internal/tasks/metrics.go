package tasks

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var taskOperationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "task_operations_total",
		Help: "Task use-case invocations by operation and outcome",
	},
	[]string{"operation", "outcome"},
)

func init() {
	prometheus.MustRegister(taskOperationsTotal)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrTaskNotFound):
		return "not_found"
	default:
		return "error"
	}
}
