package course

import (
	"errors"
	"testing"

	"course-service/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(n int) []int {
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i + 1
	}
	return ids
}

func TestEnrollmentPolicy_Check(t *testing.T) {
	tests := []struct {
		name     string
		max      int
		students int
		wantErr  bool
	}{
		{"at limit", 20, 20, false},
		{"below limit", 20, 12, false},
		{"above limit", 20, 25, true},
		{"empty set", 20, 0, false},
		{"one over", 1, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewEnrollmentPolicy(tt.max).Check(seq(tt.students))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrTooManyStudents))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewEnrollmentPolicy_DefaultsNonPositive(t *testing.T) {
	assert.Equal(t, config.DefaultMaxStudentsPerCourse, NewEnrollmentPolicy(0).MaxStudents)
	assert.Equal(t, config.DefaultMaxStudentsPerCourse, NewEnrollmentPolicy(-3).MaxStudents)
	assert.Equal(t, 5, NewEnrollmentPolicy(5).MaxStudents)
}

func TestNormalizeStudentIDs(t *testing.T) {
	t.Run("KeepsFirstSeenOrder", func(t *testing.T) {
		ids, err := normalizeStudentIDs([]int{3, 1, 3, 2, 1})
		require.NoError(t, err)
		assert.Equal(t, []int{3, 1, 2}, ids)
	})

	t.Run("NilIsEmpty", func(t *testing.T) {
		ids, err := normalizeStudentIDs(nil)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("RejectsNonPositive", func(t *testing.T) {
		_, err := normalizeStudentIDs([]int{1, 0})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("DuplicatesDoNotCountTowardLimit", func(t *testing.T) {
		ids, err := normalizeStudentIDs(append(seq(20), seq(5)...))
		require.NoError(t, err)
		assert.NoError(t, NewEnrollmentPolicy(20).Check(ids))
	})
}
