package db

import (
	"time"

	"github.com/golang-sql/civil"
)

// DateArg encodes a calendar date as a pgx DATE parameter.
func DateArg(d civil.Date) time.Time {
	return d.In(time.UTC)
}

// DateOf decodes a DATE column scanned into time.Time. pgx returns dates at
// UTC midnight, so converting to UTC first keeps the day stable.
func DateOf(t time.Time) civil.Date {
	return civil.DateOf(t.UTC())
}
