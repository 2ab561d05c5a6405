package worker

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	tasksTotal   *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		tasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelpress_worker_tasks_total",
			Help: "Queued compress tasks by outcome.",
		}, []string{"outcome"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelpress_worker_task_duration_seconds",
			Help:    "Duration of each queued compress task.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.tasksTotal, m.taskDuration)
	}
	return m
}
