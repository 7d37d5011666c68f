package botstate

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite"

	"memebot/internal/model"
)

// DB wraps the SQLite database holding the bot's durable state: the
// per-user reply quotas, the mention cursor, and the reply audit log.
type DB struct{ sql *sql.DB }

func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		return nil, err
	}
	db := &DB{sql: d}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS quota (
	  user_id TEXT NOT NULL,
	  day TEXT NOT NULL,
	  count INTEGER NOT NULL,
	  last_updated TEXT NOT NULL,
	  PRIMARY KEY (user_id, day)
	);
	CREATE TABLE IF NOT EXISTS cursor (
	  id INTEGER PRIMARY KEY CHECK (id=1),
	  last_mention_id TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS reply_log (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  ts INTEGER NOT NULL,
	  user_id TEXT,
	  user_handle TEXT,
	  tweet_id TEXT,
	  tweet_text TEXT,
	  reply_text TEXT,
	  reply_status TEXT NOT NULL,
	  error_message TEXT,
	  parent_tweet TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_reply_log_ts ON reply_log(ts);
	`)
	return err
}

// IncrementQuota consumes one reply slot for (userID, day) if fewer
// than cap have been used, creating the record on first use. The
// check and the increment are a single statement, so concurrent
// callers cannot both take the last slot.
func (d *DB) IncrementQuota(ctx context.Context, userID, day string, limit int, now time.Time) (bool, error) {
	res, err := d.sql.ExecContext(ctx, `
	INSERT INTO quota(user_id, day, count, last_updated) VALUES(?,?,1,?)
	ON CONFLICT(user_id, day) DO UPDATE
	  SET count = count + 1, last_updated = excluded.last_updated
	  WHERE count < ?`,
		userID, day, now.UTC().Format(time.RFC3339), limit)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetQuota returns the stored record for (userID, day); ok=false when
// no reply has been sent to that user that day.
func (d *DB) GetQuota(ctx context.Context, userID, day string) (model.QuotaRecord, bool, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT count, last_updated FROM quota WHERE user_id=? AND day=?`, userID, day)
	var count int
	var updated string
	if err := row.Scan(&count, &updated); err != nil {
		if err == sql.ErrNoRows {
			return model.QuotaRecord{}, false, nil
		}
		return model.QuotaRecord{}, false, err
	}
	ts, _ := time.Parse(time.RFC3339, updated)
	return model.QuotaRecord{UserID: userID, Day: day, Count: count, LastUpdated: ts}, true, nil
}

// LoadLastMentionID returns the persisted cursor, or "" before the
// first mention has ever been processed.
func (d *DB) LoadLastMentionID(ctx context.Context) (string, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT last_mention_id FROM cursor WHERE id=1`)
	var id string
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return id, nil
}

// SaveLastMentionID persists the cursor. The watermark never moves
// backwards: a value smaller than the stored one is ignored.
func (d *DB) SaveLastMentionID(ctx context.Context, id string) error {
	stored, err := d.LoadLastMentionID(ctx)
	if err != nil {
		return err
	}
	if stored != "" && model.CompareID(id, stored) < 0 {
		return nil
	}
	_, err = d.sql.ExecContext(ctx, `
	INSERT INTO cursor(id, last_mention_id) VALUES(1, ?)
	ON CONFLICT(id) DO UPDATE SET last_mention_id=excluded.last_mention_id`, id)
	return err
}

// AppendReplyLog writes one audit row. Rows are write-once; nothing
// in the bot reads them back.
func (d *DB) AppendReplyLog(ctx context.Context, e model.ReplyLogEntry) error {
	var parent any
	if e.ParentTweet != nil {
		pb, _ := json.Marshal(e.ParentTweet)
		parent = string(pb)
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := d.sql.ExecContext(ctx, `
	INSERT INTO reply_log(ts, user_id, user_handle, tweet_id, tweet_text, reply_text, reply_status, error_message, parent_tweet)
	VALUES(?,?,?,?,?,?,?,?,?)`,
		ts.Unix(), e.UserID, e.UserHandle, e.TweetID, e.TweetText, e.ReplyText, string(e.ReplyStatus), e.ErrorMessage, parent)
	return err
}

// CountReplyLog returns the number of audit rows with the given
// status in [start, end). Used by tests and ad-hoc inspection.
func (d *DB) CountReplyLog(ctx context.Context, start, end time.Time, status model.ReplyStatus) (int, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM reply_log WHERE ts>=? AND ts<? AND reply_status=?`,
		start.Unix(), end.Unix(), string(status))
	var n int
	err := row.Scan(&n)
	return n, err
}
