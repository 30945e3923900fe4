package persistence

import (
	"time"

	"github.com/jackc/pgx/v5"
)

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}
