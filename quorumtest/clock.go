package quorumtest

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Genesis is the time every clock created by NewClock starts at.
var Genesis = time.Date(2019, time.April, 4, 11, 35, 40, 0, time.UTC)

// NewClock returns a mock clock set to Genesis. Time only moves when the
// test calls Add or Set.
func NewClock() *clock.Mock {
	c := clock.NewMock()
	c.Set(Genesis)
	return c
}
