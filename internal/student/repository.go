package student

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"course-service/internal/metrics"

	"github.com/uptrace/bun"
)

// enrollmentTable is the course/student join table owned by the course package.
const enrollmentTable = "course_students"

type Repository interface {
	Create(ctx context.Context, student *Student) (*Student, error)
	GetAll(ctx context.Context) ([]Student, error)
	GetByID(ctx context.Context, id int) (*Student, error)
	Delete(ctx context.Context, id int) error
}

type repository struct {
	db      *bun.DB
	metrics *metrics.Metrics
}

func NewRepository(db *bun.DB, m *metrics.Metrics) Repository {
	return &repository{
		db:      db,
		metrics: m,
	}
}

func (r *repository) Create(ctx context.Context, student *Student) (*Student, error) {
	start := time.Now()
	_, err := r.db.NewInsert().Model(student).Returning("*").Exec(ctx)

	r.metrics.Database.RecordQuery(ctx, "insert", "students", time.Since(start), err)

	if err != nil {
		return nil, err
	}
	return student, nil
}

func (r *repository) GetAll(ctx context.Context) ([]Student, error) {
	start := time.Now()
	students := make([]Student, 0)
	err := r.db.NewSelect().Model(&students).Order("s.id ASC").Scan(ctx)

	r.metrics.Database.RecordQuery(ctx, "select", "students", time.Since(start), err)

	return students, err
}

func (r *repository) GetByID(ctx context.Context, id int) (*Student, error) {
	start := time.Now()
	student := new(Student)
	err := r.db.NewSelect().Model(student).Where("s.id = ?", id).Scan(ctx)

	r.metrics.Database.RecordQuery(ctx, "select", "students", time.Since(start), err)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}
	return student, nil
}

// Delete removes the student and its enrollments. Courses are untouched.
func (r *repository) Delete(ctx context.Context, id int) error {
	start := time.Now()
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			TableExpr(enrollmentTable).
			Where("student_id = ?", id).
			Exec(ctx); err != nil {
			return err
		}

		result, err := tx.NewDelete().Model((*Student)(nil)).Where("id = ?", id).Exec(ctx)
		if err != nil {
			return err
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rowsAffected == 0 {
			return ErrStudentNotFound
		}
		return nil
	})

	r.metrics.Database.RecordQuery(ctx, "delete", "students", time.Since(start), err)

	return err
}
