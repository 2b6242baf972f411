package course

import (
	"bytes"
	"encoding/json"
	"strings"
)

type CourseRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Students []int  `json:"students"`
}

// CoursePatchRequest carries only the fields to change. A present
// students list replaces the whole enrollment.
type CoursePatchRequest struct {
	Name     *string    `json:"name" validate:"omitempty,min=1,max=255"`
	Students StudentIDs `json:"students"`
}

// StudentIDs records whether the students key was sent at all and whether
// it was an explicit null, which a plain pointer cannot tell apart.
type StudentIDs struct {
	IDs  []int
	Set  bool
	Null bool
}

func (s *StudentIDs) UnmarshalJSON(data []byte) error {
	s.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		s.Null = true
		return nil
	}
	return json.Unmarshal(data, &s.IDs)
}

type CourseResponse struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Students []int  `json:"students"`
}

func (r CourseRequest) ToUpdate() Update {
	name := strings.TrimSpace(r.Name)
	return Update{
		Name:            &name,
		StudentIDs:      r.Students,
		ReplaceStudents: true,
	}
}

func (r CoursePatchRequest) ToUpdate() Update {
	u := Update{}
	if r.Name != nil {
		name := strings.TrimSpace(*r.Name)
		u.Name = &name
	}
	if r.Students.Set && !r.Students.Null {
		u.StudentIDs = r.Students.IDs
		u.ReplaceStudents = true
	}
	return u
}

func ToResponse(c *Course) CourseResponse {
	return CourseResponse{
		ID:       c.ID,
		Name:     c.Name,
		Students: c.StudentIDs(),
	}
}

func ToResponses(courses []Course) []CourseResponse {
	out := make([]CourseResponse, len(courses))
	for i := range courses {
		out[i] = ToResponse(&courses[i])
	}
	return out
}
