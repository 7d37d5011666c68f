package quota

import (
	"context"
	"time"

	"memebot/internal/store/botstate"
)

// DailyCap is the number of replies one user can receive per UTC day.
const DailyCap = 2

// Gate is the per-user daily admission check consulted before any
// generation work is attempted.
type Gate struct {
	db    *botstate.DB
	cap   int
	nowFn func() time.Time
}

func NewGate(db *botstate.DB) *Gate {
	return &Gate{db: db, cap: DailyCap, nowFn: time.Now}
}

// TryConsume takes one reply slot for the user on the current UTC
// calendar day. The first attempt of the day creates the record. A
// store error denies the attempt: failing closed keeps the cap
// invariant even when persistence is flaky.
func (g *Gate) TryConsume(ctx context.Context, userID string) (bool, error) {
	now := g.nowFn().UTC()
	day := now.Format("2006-01-02")
	return g.db.IncrementQuota(ctx, userID, day, g.cap, now)
}
