package interview

import "github.com/prometheus/client_golang/prometheus"

var (
	// answersSubmitted counts stored answers by how they were triggered.
	answersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_answers_submitted_total",
			Help: "Answers stored, by submission mode (manual or auto).",
		},
		[]string{"mode"},
	)

	submitFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "interview_answer_write_failures_total",
			Help: "Answer submissions whose write failed and were kept for retry.",
		},
	)

	completionFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "interview_completion_write_failures_total",
			Help: "Completion writes that failed and were scheduled for retry.",
		},
	)

	interviewsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "interview_completed_total",
			Help: "Interviews that reached the completed stage.",
		},
	)
)

func init() {
	prometheus.MustRegister(answersSubmitted, submitFailures, completionFailures, interviewsCompleted)
}
