package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	Database *DatabaseMetrics
	Health   *HealthMetrics
	Requests *RequestMetrics

	coursesCreated      metric.Int64Counter
	coursesUpdated      metric.Int64Counter
	coursesDeleted      metric.Int64Counter
	coursesViewed       metric.Int64Counter
	enrollmentsRejected metric.Int64Counter
	studentsCreated     metric.Int64Counter
	studentsDeleted     metric.Int64Counter
	eventsPublished     metric.Int64Counter
	eventPublishErrors  metric.Int64Counter
	eventPublishTime    metric.Float64Histogram
}

func New(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.Database, err = NewDatabaseMetrics(meter)
	if err != nil {
		return nil, err
	}

	m.Health, err = NewHealthMetrics(meter)
	if err != nil {
		return nil, err
	}

	m.Requests, err = NewRequestMetrics(meter)
	if err != nil {
		return nil, err
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.coursesCreated, "course_service.courses.created", "Total number of courses created", "{course}"},
		{&m.coursesUpdated, "course_service.courses.updated", "Total number of course updates", "{course}"},
		{&m.coursesDeleted, "course_service.courses.deleted", "Total number of courses deleted", "{course}"},
		{&m.coursesViewed, "course_service.courses.viewed", "Total number of course reads", "{view}"},
		{&m.enrollmentsRejected, "course_service.enrollments.rejected", "Writes rejected by the enrollment limit", "{request}"},
		{&m.studentsCreated, "course_service.students.created", "Total number of students created", "{student}"},
		{&m.studentsDeleted, "course_service.students.deleted", "Total number of students deleted", "{student}"},
		{&m.eventsPublished, "course_service.events.published", "Course events published", "{event}"},
		{&m.eventPublishErrors, "course_service.events.errors", "Course events that failed to publish", "{error}"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, err
		}
	}

	// Buckets: 100µs, 500µs, 1ms, 5ms, 10ms, 25ms, 50ms, 100ms, 250ms, 500ms, 1s
	m.eventPublishTime, err = meter.Float64Histogram(
		"course_service.events.publish_duration",
		metric.WithDescription("Time spent publishing a course event"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func add(ctx context.Context, c metric.Int64Counter, attrs ...attribute.KeyValue) {
	if c != nil {
		c.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *Metrics) RecordCourseCreated(ctx context.Context) {
	if m != nil {
		add(ctx, m.coursesCreated)
	}
}

func (m *Metrics) RecordCourseUpdated(ctx context.Context) {
	if m != nil {
		add(ctx, m.coursesUpdated)
	}
}

func (m *Metrics) RecordCourseDeleted(ctx context.Context) {
	if m != nil {
		add(ctx, m.coursesDeleted)
	}
}

func (m *Metrics) RecordCourseViewed(ctx context.Context) {
	if m != nil {
		add(ctx, m.coursesViewed)
	}
}

// RecordEnrollmentRejected counts writes refused because of the student limit.
// The requested size is logged, not attached, to keep one series per limit.
func (m *Metrics) RecordEnrollmentRejected(ctx context.Context, limit int) {
	if m != nil {
		add(ctx, m.enrollmentsRejected, attribute.Int("limit", limit))
	}
}

func (m *Metrics) RecordStudentCreated(ctx context.Context) {
	if m != nil {
		add(ctx, m.studentsCreated)
	}
}

func (m *Metrics) RecordStudentDeleted(ctx context.Context) {
	if m != nil {
		add(ctx, m.studentsDeleted)
	}
}

func (m *Metrics) RecordEventPublished(ctx context.Context, driver, eventType string, duration time.Duration, err error) {
	if m == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("driver", driver),
		attribute.String("type", eventType),
	}
	if m.eventPublishTime != nil {
		m.eventPublishTime.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}
	if err != nil {
		add(ctx, m.eventPublishErrors, attrs...)
		return
	}
	add(ctx, m.eventsPublished, attrs...)
}

// NewMock creates a no-op Metrics instance for testing
// The returned Metrics will safely ignore all Record* calls
func NewMock() *Metrics {
	return &Metrics{
		Database: &DatabaseMetrics{},
		Health:   &HealthMetrics{dependencies: make(map[string]bool)},
		Requests: &RequestMetrics{},
	}
}
