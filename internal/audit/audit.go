package audit

import (
	"context"
	"time"

	"memebot/internal/logging"
	"memebot/internal/model"
	"memebot/internal/store/botstate"
)

// Logger is the best-effort reply audit sink. A write failure is
// logged and dropped; the pipeline never stalls on audit.
type Logger struct {
	db    *botstate.DB
	nowFn func() time.Time
}

func NewLogger(db *botstate.DB) *Logger {
	return &Logger{db: db, nowFn: time.Now}
}

// Record appends one audit entry, stamping the time if unset.
func (l *Logger) Record(ctx context.Context, e model.ReplyLogEntry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = l.nowFn().UTC()
	}
	if err := l.db.AppendReplyLog(ctx, e); err != nil {
		logging.Error("reply_log_write_failed", map[string]any{"tweet_id": e.TweetID, "error": err.Error()})
	}
}
