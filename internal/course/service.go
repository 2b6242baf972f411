package course

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"course-service/internal/metrics"
)

var (
	ErrCourseNotFound = errors.New("course not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnknownStudent = errors.New("unknown student")
)

type Service interface {
	CreateCourse(ctx context.Context, name string, studentIDs []int) (*Course, error)
	ListCourses(ctx context.Context, filter Filter) ([]Course, error)
	GetCourseByID(ctx context.Context, id int) (*Course, error)
	UpdateCourse(ctx context.Context, id int, update Update) (*Course, error)
	DeleteCourse(ctx context.Context, id int) error
}

type service struct {
	repo     Repository
	policy   EnrollmentPolicy
	producer Producer
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewService wires the course rules. producer may be nil to disable events.
func NewService(repo Repository, policy EnrollmentPolicy, producer Producer, logger *slog.Logger, m *metrics.Metrics) Service {
	return &service{
		repo:     repo,
		policy:   policy,
		producer: producer,
		logger:   logger,
		metrics:  m,
	}
}

func (s *service) CreateCourse(ctx context.Context, name string, studentIDs []int) (*Course, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	ids, err := s.checkEnrollment(ctx, studentIDs)
	if err != nil {
		return nil, err
	}

	course := &Course{Name: name}
	if err := s.repo.Create(ctx, course, ids); err != nil {
		return nil, err
	}

	s.metrics.RecordCourseCreated(ctx)
	s.publish(ctx, EventCourseCreated, course)

	return course, nil
}

func (s *service) ListCourses(ctx context.Context, filter Filter) ([]Course, error) {
	return s.repo.List(ctx, filter)
}

func (s *service) GetCourseByID(ctx context.Context, id int) (*Course, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) UpdateCourse(ctx context.Context, id int, update Update) (*Course, error) {
	if update.Name != nil && strings.TrimSpace(*update.Name) == "" {
		return nil, fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
	}

	if update.ReplaceStudents {
		ids, err := s.checkEnrollment(ctx, update.StudentIDs)
		if err != nil {
			return nil, err
		}
		update.StudentIDs = ids
	}

	if err := s.repo.Update(ctx, id, update); err != nil {
		return nil, err
	}

	course, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordCourseUpdated(ctx)
	s.publish(ctx, EventCourseUpdated, course)

	return course, nil
}

func (s *service) DeleteCourse(ctx context.Context, id int) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.metrics.RecordCourseDeleted(ctx)
	s.publish(ctx, EventCourseDeleted, &Course{ID: id})

	return nil
}

// checkEnrollment normalizes the proposed set and applies the policy to it
// before anything is written.
func (s *service) checkEnrollment(ctx context.Context, studentIDs []int) ([]int, error) {
	ids, err := normalizeStudentIDs(studentIDs)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Check(ids); err != nil {
		s.logger.InfoContext(ctx, "enrollment rejected",
			"requested", len(ids),
			"max_students", s.policy.MaxStudents,
		)
		s.metrics.RecordEnrollmentRejected(ctx, s.policy.MaxStudents)
		return nil, err
	}
	return ids, nil
}

// publish never fails the caller: the write has already committed.
func (s *service) publish(ctx context.Context, eventType string, course *Course) {
	if s.producer == nil {
		return
	}

	event := newEvent(eventType, course)
	if err := s.producer.SendMessage(ctx, event.Key(), event); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish course event",
			"error", err,
			"type", eventType,
			"course_id", course.ID,
		)
	}
}
