package model

import "time"

// Mention is an inbound tweet that mentions the bot.
type Mention struct {
	ID                 string
	AuthorID           string
	Text               string
	CreatedAt          time.Time
	ReferencedParentID string
}

// User represents the subset of X user fields the bot uses.
type User struct {
	ID       string
	Username string
}

// QuotaRecord tracks replies sent to one user on one UTC day.
type QuotaRecord struct {
	UserID      string
	Day         string // UTC calendar date, YYYY-MM-DD
	Count       int
	LastUpdated time.Time
}

// ReplyStatus is the outcome recorded for a reply attempt.
type ReplyStatus string

const (
	ReplySuccess ReplyStatus = "success"
	ReplyFailure ReplyStatus = "failure"
)

// ReplyLogEntry is an append-only audit record of one reply attempt.
type ReplyLogEntry struct {
	UserID       string
	UserHandle   string
	TweetID      string
	TweetText    string
	ReplyText    string
	ReplyStatus  ReplyStatus
	ErrorMessage string
	ParentTweet  *Mention
	Timestamp    time.Time
}
