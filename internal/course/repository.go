package course

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"course-service/internal/metrics"
	"course-service/internal/student"

	"github.com/uptrace/bun"
)

// Filter narrows List. Nil fields match everything.
type Filter struct {
	ID   *int
	Name *string
}

// Update describes a course write. Nil Name keeps the current name;
// ReplaceStudents swaps the whole enrollment for StudentIDs.
type Update struct {
	Name            *string
	StudentIDs      []int
	ReplaceStudents bool
}

type Repository interface {
	Create(ctx context.Context, course *Course, studentIDs []int) error
	List(ctx context.Context, filter Filter) ([]Course, error)
	GetByID(ctx context.Context, id int) (*Course, error)
	Update(ctx context.Context, id int, update Update) error
	Delete(ctx context.Context, id int) error
}

type repository struct {
	db      *bun.DB
	metrics *metrics.Metrics
}

func NewRepository(db *bun.DB, m *metrics.Metrics) Repository {
	RegisterModels(db)
	return &repository{
		db:      db,
		metrics: m,
	}
}

func orderStudents(q *bun.SelectQuery) *bun.SelectQuery {
	return q.Order("s.id ASC")
}

// Create inserts the course and its enrollments in one transaction.
func (r *repository) Create(ctx context.Context, course *Course, studentIDs []int) error {
	start := time.Now()
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := ensureStudentsExist(ctx, tx, studentIDs); err != nil {
			return err
		}
		if _, err := tx.NewInsert().Model(course).Returning("*").Exec(ctx); err != nil {
			return err
		}
		return enroll(ctx, tx, course.ID, studentIDs)
	})

	r.metrics.Database.RecordQuery(ctx, "insert", "courses", time.Since(start), err)

	if err != nil {
		return err
	}

	// Reload to pick up the enrolled students in canonical order
	loaded, err := r.GetByID(ctx, course.ID)
	if err != nil {
		return err
	}
	*course = *loaded
	return nil
}

func (r *repository) List(ctx context.Context, filter Filter) ([]Course, error) {
	start := time.Now()
	courses := make([]Course, 0)
	q := r.db.NewSelect().
		Model(&courses).
		Relation("Students", orderStudents).
		Order("c.id ASC")
	if filter.ID != nil {
		q = q.Where("c.id = ?", *filter.ID)
	}
	if filter.Name != nil {
		q = q.Where("c.name = ?", *filter.Name)
	}
	err := q.Scan(ctx)

	r.metrics.Database.RecordQuery(ctx, "select", "courses", time.Since(start), err)

	return courses, err
}

func (r *repository) GetByID(ctx context.Context, id int) (*Course, error) {
	start := time.Now()
	course := new(Course)
	err := r.db.NewSelect().
		Model(course).
		Relation("Students", orderStudents).
		Where("c.id = ?", id).
		Scan(ctx)

	r.metrics.Database.RecordQuery(ctx, "select", "courses", time.Since(start), err)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCourseNotFound
		}
		return nil, err
	}
	return course, nil
}

func (r *repository) Update(ctx context.Context, id int, update Update) error {
	start := time.Now()
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().Model((*Course)(nil)).Where("c.id = ?", id).Exists(ctx)
		if err != nil {
			return err
		}
		if !exists {
			return ErrCourseNotFound
		}

		if update.Name != nil {
			if _, err := tx.NewUpdate().
				Model((*Course)(nil)).
				Set("name = ?", *update.Name).
				Where("id = ?", id).
				Exec(ctx); err != nil {
				return err
			}
		}

		if !update.ReplaceStudents {
			return nil
		}
		if err := ensureStudentsExist(ctx, tx, update.StudentIDs); err != nil {
			return err
		}
		if _, err := tx.NewDelete().
			Model((*CourseStudent)(nil)).
			Where("course_id = ?", id).
			Exec(ctx); err != nil {
			return err
		}
		return enroll(ctx, tx, id, update.StudentIDs)
	})

	r.metrics.Database.RecordQuery(ctx, "update", "courses", time.Since(start), err)

	return err
}

// Delete drops the course and its enrollments; students stay.
func (r *repository) Delete(ctx context.Context, id int) error {
	start := time.Now()
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*CourseStudent)(nil)).
			Where("course_id = ?", id).
			Exec(ctx); err != nil {
			return err
		}

		result, err := tx.NewDelete().Model((*Course)(nil)).Where("id = ?", id).Exec(ctx)
		if err != nil {
			return err
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rowsAffected == 0 {
			return ErrCourseNotFound
		}
		return nil
	})

	r.metrics.Database.RecordQuery(ctx, "delete", "courses", time.Since(start), err)

	return err
}

func ensureStudentsExist(ctx context.Context, tx bun.Tx, ids []int) error {
	if len(ids) == 0 {
		return nil
	}

	var found []int
	err := tx.NewSelect().
		Model((*student.Student)(nil)).
		Column("id").
		Where("s.id IN (?)", bun.In(ids)).
		Scan(ctx, &found)
	if err != nil {
		return err
	}
	if len(found) == len(ids) {
		return nil
	}

	known := make(map[int]struct{}, len(found))
	for _, id := range found {
		known[id] = struct{}{}
	}
	missing := make([]int, 0, len(ids)-len(found))
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			missing = append(missing, id)
		}
	}
	return fmt.Errorf("%w: %v", ErrUnknownStudent, missing)
}

func enroll(ctx context.Context, tx bun.Tx, courseID int, studentIDs []int) error {
	if len(studentIDs) == 0 {
		return nil
	}

	rows := make([]CourseStudent, len(studentIDs))
	for i, id := range studentIDs {
		rows[i] = CourseStudent{CourseID: courseID, StudentID: id}
	}
	_, err := tx.NewInsert().Model(&rows).Exec(ctx)
	return err
}
