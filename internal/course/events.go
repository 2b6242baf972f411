package course

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	EventCourseCreated = "course.created"
	EventCourseUpdated = "course.updated"
	EventCourseDeleted = "course.deleted"
)

// Event is published after a course write commits.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	CourseID   int       `json:"course_id"`
	Name       string    `json:"name,omitempty"`
	Students   []int     `json:"students"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Producer interface for messaging (NATS/Kafka)
type Producer interface {
	SendMessage(ctx context.Context, key string, value interface{}) error
}

func newEvent(eventType string, c *Course) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		CourseID:   c.ID,
		Name:       c.Name,
		Students:   c.StudentIDs(),
		OccurredAt: time.Now().UTC(),
	}
}

func (e Event) Key() string {
	return strconv.Itoa(e.CourseID)
}

// EventType lets producers label metrics and headers without importing this package.
func (e Event) EventType() string {
	return e.Type
}
