package student

import (
	"time"

	"github.com/uptrace/bun"
)

type Student struct {
	bun.BaseModel `bun:"table:students,alias:s"`

	ID        int       `bun:"id,pk,autoincrement"`
	Name      string    `bun:"name,notnull"`
	BirthDate time.Time `bun:"birth_date,type:date,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
