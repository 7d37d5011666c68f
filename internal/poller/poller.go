package poller

import (
	"context"
	"errors"
	"time"

	"memebot/internal/audit"
	"memebot/internal/generate"
	"memebot/internal/logging"
	"memebot/internal/mention"
	"memebot/internal/metrics"
	"memebot/internal/model"
	"memebot/internal/quota"
	"memebot/internal/store/botstate"
	"memebot/internal/xclient"
)

// Deliverer posts one reply, degrading image-to-text internally.
type Deliverer interface {
	Deliver(ctx context.Context, targetID, text string, imageBytes []byte) error
}

// Poller drives the mention-reply loop: authenticate once, then fetch,
// process, sleep, forever. Exactly one mention is in flight at a time;
// that serialization is what makes the quota gate and the cursor safe
// without extra locking.
type Poller struct {
	client xclient.API
	db     *botstate.DB
	gate   *quota.Gate
	text   *generate.TextCascade
	image  *generate.ImageCascade
	disp   Deliverer
	audit  *audit.Logger

	batchSize     int
	pollInterval  time.Duration
	rateLimitWait time.Duration

	nowFn   func() time.Time
	sleepFn func(ctx context.Context, d time.Duration) error

	me     model.User
	cursor string
}

type Options struct {
	BatchSize     int
	PollInterval  time.Duration
	RateLimitWait time.Duration
}

func New(client xclient.API, db *botstate.DB, gate *quota.Gate, text *generate.TextCascade, image *generate.ImageCascade, disp Deliverer, auditLog *audit.Logger, opts Options) *Poller {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Hour
	}
	if opts.RateLimitWait <= 0 {
		opts.RateLimitWait = 15 * time.Minute
	}
	return &Poller{
		client:        client,
		db:            db,
		gate:          gate,
		text:          text,
		image:         image,
		disp:          disp,
		audit:         auditLog,
		batchSize:     opts.BatchSize,
		pollInterval:  opts.PollInterval,
		rateLimitWait: opts.RateLimitWait,
		nowFn:         time.Now,
		sleepFn:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run authenticates and then polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.Authenticate(ctx); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.PollOnce(ctx); err != nil {
			var rle *xclient.RateLimitError
			if errors.As(err, &rle) {
				p.sleepUntilReset(ctx, rle)
				continue
			}
			metrics.PollErrors.Inc()
			logging.Error("poll_error", map[string]any{"error": err.Error()})
		}
		logging.Info("poll_sleep", map[string]any{"interval": p.pollInterval.String()})
		if err := p.sleepFn(ctx, p.pollInterval); err != nil {
			return err
		}
	}
}

// Authenticate resolves the bot identity, retrying through rate
// limits using the platform's reset signal or the fixed fallback
// wait. Any other failure is fatal to this attempt.
func (p *Poller) Authenticate(ctx context.Context) error {
	for {
		me, err := p.client.GetMe(ctx)
		if err == nil {
			p.me = me
			logging.Info("authenticated", map[string]any{"user_id": me.ID, "username": me.Username})
			cursor, err := p.db.LoadLastMentionID(ctx)
			if err != nil {
				logging.Warn("cursor_load_failed", map[string]any{"error": err.Error()})
			}
			p.cursor = cursor
			logging.Info("cursor_loaded", map[string]any{"last_mention_id": cursor})
			return nil
		}
		var rle *xclient.RateLimitError
		if !errors.As(err, &rle) {
			return err
		}
		p.sleepUntilReset(ctx, rle)
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (p *Poller) sleepUntilReset(ctx context.Context, rle *xclient.RateLimitError) {
	wait := p.rateLimitWait
	if !rle.Reset.IsZero() {
		if d := rle.Reset.Sub(p.nowFn()); d > 0 {
			wait = d
		} else {
			wait = 0
		}
	}
	logging.Warn("rate_limited", map[string]any{"wait": wait.String()})
	_ = p.sleepFn(ctx, wait)
}

// PollOnce fetches one batch of mentions newer than the cursor and
// processes them oldest-first. Rate-limit errors from the fetch
// propagate so Run can schedule the backoff; everything per-mention is
// absorbed here.
func (p *Poller) PollOnce(ctx context.Context) error {
	metrics.PollCycles.Inc()
	mentions, err := p.client.GetMentionsSince(ctx, p.me.ID, p.cursor, p.batchSize)
	if err != nil {
		return err
	}
	// the API returns newest-first; cursor advance needs oldest-first
	for i, j := 0, len(mentions)-1; i < j; i, j = i+1, j-1 {
		mentions[i], mentions[j] = mentions[j], mentions[i]
	}
	for _, m := range mentions {
		if m.AuthorID == p.me.ID {
			continue
		}
		p.processMention(ctx, m)
	}
	return nil
}

// processMention runs one mention end-to-end. The cursor candidate
// advances before the reply is attempted: a mention that fails
// processing is logged and never retried. That trade (no double
// replies over no lost replies) is deliberate.
func (p *Poller) processMention(ctx context.Context, m model.Mention) {
	p.cursor = model.MaxID(p.cursor, m.ID)
	metrics.MentionsProcessed.Inc()
	start := p.nowFn()
	logging.Info("mention_received", map[string]any{"mention_id": m.ID, "author_id": m.AuthorID})

	effective, parent := mention.Resolve(ctx, p.client, m)

	ok, err := p.gate.TryConsume(ctx, m.AuthorID)
	if err != nil {
		p.recordFailure(ctx, m, err)
		return
	}
	if !ok {
		metrics.QuotaDenials.Inc()
		logging.Info("quota_exceeded", map[string]any{"author_id": m.AuthorID})
		return
	}

	replyText := p.text.Generate(ctx, generate.MemePrompt(effective.Text))

	imageBytes, err := p.image.Generate(ctx, generate.ImagePrompt(replyText))
	if err != nil {
		if !errors.Is(err, generate.ErrNoImage) {
			logging.Warn("image_generation_failed", map[string]any{"error": err.Error()})
		}
		imageBytes = nil
	}

	if err := p.disp.Deliver(ctx, m.ID, replyText, imageBytes); err != nil {
		p.recordFailure(ctx, m, err)
		p.persistCursor(ctx)
		return
	}

	p.audit.Record(ctx, model.ReplyLogEntry{
		UserID:      m.AuthorID,
		TweetID:     m.ID,
		TweetText:   effective.Text,
		ReplyText:   replyText,
		ReplyStatus: model.ReplySuccess,
		ParentTweet: parent,
	})
	metrics.IncReply(string(model.ReplySuccess))
	p.persistCursor(ctx)
	metrics.ObserveReplyDuration(start)
	logging.Info("reply_sent", map[string]any{"mention_id": m.ID, "author_id": m.AuthorID, "with_image": len(imageBytes) > 0})
}

func (p *Poller) recordFailure(ctx context.Context, m model.Mention, cause error) {
	logging.Error("mention_processing_failed", map[string]any{"mention_id": m.ID, "error": cause.Error()})
	handle := ""
	if u, err := p.client.GetUserByID(ctx, m.AuthorID); err == nil && u.Username != "" {
		handle = "@" + u.Username
	}
	p.audit.Record(ctx, model.ReplyLogEntry{
		UserID:       m.AuthorID,
		UserHandle:   handle,
		TweetID:      m.ID,
		TweetText:    m.Text,
		ReplyStatus:  model.ReplyFailure,
		ErrorMessage: cause.Error(),
	})
	metrics.IncReply(string(model.ReplyFailure))
}

// persistCursor externalizes the in-memory watermark. A write failure
// risks reprocessing after a restart, which the at-least-once contract
// accepts, so it is warned about and swallowed.
func (p *Poller) persistCursor(ctx context.Context) {
	if p.cursor == "" {
		return
	}
	if err := p.db.SaveLastMentionID(ctx, p.cursor); err != nil {
		logging.Warn("cursor_persist_failed", map[string]any{"last_mention_id": p.cursor, "error": err.Error()})
	}
}

// Cursor exposes the in-memory watermark for inspection.
func (p *Poller) Cursor() string { return p.cursor }
