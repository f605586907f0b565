package api

import (
	"time"

	log "github.com/sirupsen/logrus"
)

type boardRequestMetrics struct {
	logger         *log.Logger
	start          time.Time
	viewDuration   time.Duration
	encodeDuration time.Duration
	queryProvided  bool
	tasksReturned  int
	tasksTotal     int
	errorStage     string
}

func newBoardRequestMetrics(logger *log.Logger) *boardRequestMetrics {
	return &boardRequestMetrics{
		logger: logger,
		start:  time.Now(),
	}
}

func (m *boardRequestMetrics) ObserveView(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.viewDuration = duration
}

func (m *boardRequestMetrics) ObserveEncode(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.encodeDuration = duration
}

func (m *boardRequestMetrics) SetQueryProvided(provided bool) {
	m.queryProvided = provided
}

func (m *boardRequestMetrics) SetTasks(returned, total int) {
	if returned < 0 {
		returned = 0
	}
	if total < 0 {
		total = 0
	}
	m.tasksReturned = returned
	m.tasksTotal = total
}

func (m *boardRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *boardRequestMetrics) Log(status int, err error) {
	if m == nil || m.logger == nil {
		return
	}

	fields := log.Fields{
		"route":          "/api/board",
		"status":         status,
		"total_ms":       durationToMillis(time.Since(m.start)),
		"query_provided": m.queryProvided,
		"tasks_returned": m.tasksReturned,
		"tasks_total":    m.tasksTotal,
	}

	if m.viewDuration > 0 {
		fields["view_ms"] = durationToMillis(m.viewDuration)
	}
	if m.encodeDuration > 0 {
		fields["encode_ms"] = durationToMillis(m.encodeDuration)
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	m.logger.WithFields(fields).Info("board.request.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
