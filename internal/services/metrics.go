package services

import "github.com/prometheus/client_golang/prometheus"

var activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "interview_sessions_active",
	Help: "Interview sessions currently driven by this process.",
})

func init() {
	prometheus.MustRegister(activeSessions)
}
