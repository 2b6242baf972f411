package course

import (
	"errors"
	"fmt"

	"course-service/internal/config"
)

var ErrTooManyStudents = errors.New("too many students")

// EnrollmentPolicy bounds the number of students a single course may hold.
type EnrollmentPolicy struct {
	MaxStudents int
}

// NewEnrollmentPolicy falls back to the configured default for a non-positive max.
func NewEnrollmentPolicy(maxStudents int) EnrollmentPolicy {
	if maxStudents < 1 {
		maxStudents = config.DefaultMaxStudentsPerCourse
	}
	return EnrollmentPolicy{MaxStudents: maxStudents}
}

// Check validates the complete proposed student set, not a delta.
func (p EnrollmentPolicy) Check(studentIDs []int) error {
	if len(studentIDs) > p.MaxStudents {
		return fmt.Errorf("%w: a course allows at most %d students, got %d",
			ErrTooManyStudents, p.MaxStudents, len(studentIDs))
	}
	return nil
}

// normalizeStudentIDs drops duplicates keeping first-seen order and rejects
// non-positive ids.
func normalizeStudentIDs(ids []int) ([]int, error) {
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return nil, fmt.Errorf("%w: student id %d", ErrInvalidInput, id)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
