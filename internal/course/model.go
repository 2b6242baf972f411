package course

import (
	"time"

	"course-service/internal/student"

	"github.com/uptrace/bun"
)

type Course struct {
	bun.BaseModel `bun:"table:courses,alias:c"`

	ID        int               `bun:"id,pk,autoincrement"`
	Name      string            `bun:"name,notnull"`
	CreatedAt time.Time         `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	Students  []student.Student `bun:"m2m:course_students,join:Course=Student"`
}

// CourseStudent is the enrollment join row.
type CourseStudent struct {
	bun.BaseModel `bun:"table:course_students,alias:cs"`

	CourseID  int              `bun:"course_id,pk"`
	Course    *Course          `bun:"rel:belongs-to,join:course_id=id"`
	StudentID int              `bun:"student_id,pk"`
	Student   *student.Student `bun:"rel:belongs-to,join:student_id=id"`
}

// StudentIDs returns the ids of the enrolled students in loaded order.
func (c *Course) StudentIDs() []int {
	ids := make([]int, len(c.Students))
	for i, s := range c.Students {
		ids[i] = s.ID
	}
	return ids
}

// RegisterModels must run before any query touching Course.Students.
func RegisterModels(db *bun.DB) {
	db.RegisterModel((*CourseStudent)(nil))
}

// Models lists the tables in creation order.
func Models() []interface{} {
	return []interface{}{
		(*student.Student)(nil),
		(*Course)(nil),
		(*CourseStudent)(nil),
	}
}
