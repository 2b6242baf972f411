package student

import (
	"fmt"
	"time"
)

// DateLayout is the wire format of birth_date.
const DateLayout = "2006-01-02"

type StudentRequest struct {
	Name      string `json:"name" validate:"required,max=255"`
	BirthDate string `json:"birth_date" validate:"required,datetime=2006-01-02"`
}

type StudentResponse struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	BirthDate string `json:"birth_date"`
}

func (r StudentRequest) ToModel() (*Student, error) {
	birthDate, err := time.Parse(DateLayout, r.BirthDate)
	if err != nil {
		return nil, fmt.Errorf("%w: birth_date: %v", ErrInvalidInput, err)
	}
	return &Student{Name: r.Name, BirthDate: birthDate}, nil
}

func ToResponse(s *Student) StudentResponse {
	return StudentResponse{
		ID:        s.ID,
		Name:      s.Name,
		BirthDate: s.BirthDate.Format(DateLayout),
	}
}

func ToResponses(students []Student) []StudentResponse {
	out := make([]StudentResponse, len(students))
	for i := range students {
		out[i] = ToResponse(&students[i])
	}
	return out
}
