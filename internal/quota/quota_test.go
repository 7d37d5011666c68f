package quota

import (
	"context"
	"testing"
	"time"

	"memebot/internal/store/botstate"
)

func TestGateAllowsTwoPerDayThenDenies(t *testing.T) {
	db, err := botstate.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	g := NewGate(db)
	clock := time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC)
	g.nowFn = func() time.Time { return clock }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := g.TryConsume(ctx, "user-a")
		if err != nil || !ok {
			t.Fatalf("call %d: ok=%v err=%v", i+1, ok, err)
		}
	}
	ok, err := g.TryConsume(ctx, "user-a")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("third call of the day should be denied")
	}

	// other users are unaffected
	if ok, _ := g.TryConsume(ctx, "user-b"); !ok {
		t.Fatal("different user should be allowed")
	}

	// two minutes later it is the next UTC day and the count resets
	clock = clock.Add(2 * time.Minute)
	if ok, _ := g.TryConsume(ctx, "user-a"); !ok {
		t.Fatal("next UTC day should be allowed regardless of prior count")
	}
}
