package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"memebot/internal/audit"
	"memebot/internal/generate"
	"memebot/internal/model"
	"memebot/internal/quota"
	"memebot/internal/store/botstate"
	"memebot/internal/xclient"
)

type fakeAPI struct {
	me         model.User
	meErrs     []error // consumed by successive GetMe calls
	mentions   []model.Mention
	fetchErrs  []error // consumed by successive GetMentionsSince calls
	tweets     map[string]model.Mention
	postCalls  int
	fetchCalls int
}

func (f *fakeAPI) GetMe(ctx context.Context) (model.User, error) {
	if len(f.meErrs) > 0 {
		err := f.meErrs[0]
		f.meErrs = f.meErrs[1:]
		if err != nil {
			return model.User{}, err
		}
	}
	return f.me, nil
}

func (f *fakeAPI) GetMentionsSince(ctx context.Context, userID, sinceID string, max int) ([]model.Mention, error) {
	f.fetchCalls++
	if len(f.fetchErrs) > 0 {
		err := f.fetchErrs[0]
		f.fetchErrs = f.fetchErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.mentions, nil
}

func (f *fakeAPI) GetTweetByID(ctx context.Context, id string) (model.Mention, error) {
	if t, ok := f.tweets[id]; ok {
		return t, nil
	}
	return model.Mention{}, errors.New("not found")
}

func (f *fakeAPI) GetUserByID(ctx context.Context, id string) (model.User, error) {
	return model.User{ID: id, Username: "someone"}, nil
}

func (f *fakeAPI) PostReply(ctx context.Context, targetID, text, mediaID string) error {
	f.postCalls++
	return nil
}

func (f *fakeAPI) UploadMedia(ctx context.Context, media []byte) (string, error) {
	return "m1", nil
}

type okText struct{}

func (okText) Name() string                                                { return "ok" }
func (okText) Complete(ctx context.Context, prompt string) (string, error) { return "meme reply", nil }

type downImage struct{}

func (downImage) Name() string { return "down" }
func (downImage) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	return nil, errors.New("down")
}

type recordingDispatcher struct {
	targets []string
	images  []bool
	err     error
}

func (r *recordingDispatcher) Deliver(ctx context.Context, targetID, text string, imageBytes []byte) error {
	r.targets = append(r.targets, targetID)
	r.images = append(r.images, len(imageBytes) > 0)
	return r.err
}

func newTestPoller(t *testing.T, api *fakeAPI, disp Deliverer) (*Poller, *botstate.DB) {
	t.Helper()
	db, err := botstate.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	p := New(api, db, quota.NewGate(db),
		generate.NewTextCascade(okText{}),
		generate.NewImageCascade(downImage{}),
		disp, audit.NewLogger(db), Options{})
	p.sleepFn = func(ctx context.Context, d time.Duration) error { return nil }
	return p, db
}

func TestPollOncePersistsMaxCursorNotLastProcessed(t *testing.T) {
	api := &fakeAPI{
		me: model.User{ID: "bot"},
		mentions: []model.Mention{
			// newest-first fetch order; max id is 9, last in fetch order is 1
			{ID: "9", AuthorID: "a", Text: "x"},
			{ID: "5", AuthorID: "b", Text: "x"},
			{ID: "3", AuthorID: "c", Text: "x"},
			{ID: "1", AuthorID: "d", Text: "x"},
		},
	}
	disp := &recordingDispatcher{}
	p, db := newTestPoller(t, api, disp)
	ctx := context.Background()
	if err := p.Authenticate(ctx); err != nil {
		t.Fatal(err)
	}
	if err := p.PollOnce(ctx); err != nil {
		t.Fatal(err)
	}
	got, err := db.LoadLastMentionID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got != "9" {
		t.Fatalf("persisted cursor=%q want 9", got)
	}
	// oldest-first processing order
	if len(disp.targets) != 4 || disp.targets[0] != "1" || disp.targets[3] != "9" {
		t.Fatalf("delivery order: %v", disp.targets)
	}
}

func TestPollOnceSkipsSelfAuthoredMentions(t *testing.T) {
	api := &fakeAPI{
		me: model.User{ID: "bot"},
		mentions: []model.Mention{
			{ID: "2", AuthorID: "bot", Text: "me talking to myself"},
			{ID: "1", AuthorID: "u", Text: "hello"},
		},
	}
	disp := &recordingDispatcher{}
	p, _ := newTestPoller(t, api, disp)
	ctx := context.Background()
	_ = p.Authenticate(ctx)
	_ = p.PollOnce(ctx)
	if len(disp.targets) != 1 || disp.targets[0] != "1" {
		t.Fatalf("targets=%v", disp.targets)
	}
	// the self mention is skipped before the cursor candidate moves,
	// so only the processed mention advances the watermark
	if p.Cursor() != "1" {
		t.Fatalf("cursor=%q want 1", p.Cursor())
	}
}

func TestQuotaStopsThirdReplyToSameUser(t *testing.T) {
	api := &fakeAPI{
		me: model.User{ID: "bot"},
		mentions: []model.Mention{
			{ID: "3", AuthorID: "u1", Text: "three"},
			{ID: "2", AuthorID: "u1", Text: "two"},
			{ID: "1", AuthorID: "u1", Text: "one"},
		},
	}
	disp := &recordingDispatcher{}
	p, _ := newTestPoller(t, api, disp)
	ctx := context.Background()
	_ = p.Authenticate(ctx)
	_ = p.PollOnce(ctx)
	if len(disp.targets) != 2 {
		t.Fatalf("deliveries=%v want 2", disp.targets)
	}
	// the denied mention still advanced the cursor
	if p.Cursor() != "3" {
		t.Fatalf("cursor=%q", p.Cursor())
	}
}

func TestDeliveryFailureIsAuditedAndNotRetried(t *testing.T) {
	api := &fakeAPI{
		me:       model.User{ID: "bot"},
		mentions: []model.Mention{{ID: "7", AuthorID: "u1", Text: "hi"}},
	}
	disp := &recordingDispatcher{err: errors.New("post down")}
	p, db := newTestPoller(t, api, disp)
	ctx := context.Background()
	_ = p.Authenticate(ctx)
	_ = p.PollOnce(ctx)

	now := time.Now().UTC()
	n, err := db.CountReplyLog(ctx, now.Add(-time.Minute), now.Add(time.Minute), model.ReplyFailure)
	if err != nil || n != 1 {
		t.Fatalf("failure audit rows=%d err=%v", n, err)
	}
	// cursor persisted past the failed mention: it will never be retried
	got, _ := db.LoadLastMentionID(ctx)
	if got != "7" {
		t.Fatalf("cursor=%q want 7", got)
	}
}

func TestImageExhaustionDegradesToTextOnly(t *testing.T) {
	api := &fakeAPI{
		me:       model.User{ID: "bot"},
		mentions: []model.Mention{{ID: "1", AuthorID: "u", Text: "hi"}},
	}
	disp := &recordingDispatcher{}
	p, _ := newTestPoller(t, api, disp)
	ctx := context.Background()
	_ = p.Authenticate(ctx)
	_ = p.PollOnce(ctx)
	if len(disp.images) != 1 || disp.images[0] {
		t.Fatalf("images=%v want one text-only delivery", disp.images)
	}
}

func TestEmptyMentionResolvesParentForPrompt(t *testing.T) {
	api := &fakeAPI{
		me:       model.User{ID: "bot"},
		mentions: []model.Mention{{ID: "2", AuthorID: "u", Text: "", ReferencedParentID: "1"}},
		tweets:   map[string]model.Mention{"1": {ID: "1", AuthorID: "v", Text: "parent words"}},
	}
	disp := &recordingDispatcher{}
	p, db := newTestPoller(t, api, disp)
	ctx := context.Background()
	_ = p.Authenticate(ctx)
	_ = p.PollOnce(ctx)
	if len(disp.targets) != 1 || disp.targets[0] != "2" {
		t.Fatalf("reply must target the original mention: %v", disp.targets)
	}
	now := time.Now().UTC()
	n, _ := db.CountReplyLog(ctx, now.Add(-time.Minute), now.Add(time.Minute), model.ReplySuccess)
	if n != 1 {
		t.Fatalf("success audit rows=%d", n)
	}
}

func TestAuthenticateSleepsUntilRateLimitReset(t *testing.T) {
	now := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	api := &fakeAPI{
		me: model.User{ID: "bot"},
		meErrs: []error{
			&xclient.RateLimitError{StatusCode: 429, Reset: now.Add(120 * time.Second)},
			nil,
		},
	}
	p, _ := newTestPoller(t, api, &recordingDispatcher{})
	p.nowFn = func() time.Time { return now }
	var slept []time.Duration
	p.sleepFn = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	if err := p.Authenticate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(slept) != 1 {
		t.Fatalf("sleeps=%v", slept)
	}
	if slept[0] < 119*time.Second || slept[0] >= 121*time.Second {
		t.Fatalf("slept %v, want ~120s", slept[0])
	}
}

func TestRunRateLimitedFetchSleepsUntilResetThenRefetches(t *testing.T) {
	now := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	api := &fakeAPI{
		me: model.User{ID: "bot"},
		fetchErrs: []error{
			&xclient.RateLimitError{StatusCode: 429, Reset: now.Add(120 * time.Second)},
			nil,
		},
	}
	p, _ := newTestPoller(t, api, &recordingDispatcher{})
	p.nowFn = func() time.Time { return now }
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var slept []time.Duration
	p.sleepFn = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		// stop once the refetch has happened and the loop reaches
		// its inter-cycle sleep
		if api.fetchCalls >= 2 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	err := p.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
	if api.fetchCalls != 2 {
		t.Fatalf("fetch calls=%d want 2", api.fetchCalls)
	}
	if len(slept) != 2 {
		t.Fatalf("sleeps=%v want reset wait then poll interval", slept)
	}
	// the only sleep before the refetch is the reset wait, not the
	// one-hour poll interval
	if slept[0] < 119*time.Second || slept[0] >= 121*time.Second {
		t.Fatalf("reset wait=%v want ~120s", slept[0])
	}
	if slept[1] != time.Hour {
		t.Fatalf("inter-cycle sleep=%v want 1h", slept[1])
	}
}

func TestAuthenticateRateLimitWithoutResetUsesFallback(t *testing.T) {
	api := &fakeAPI{
		me:     model.User{ID: "bot"},
		meErrs: []error{&xclient.RateLimitError{StatusCode: 429}, nil},
	}
	p, _ := newTestPoller(t, api, &recordingDispatcher{})
	var slept []time.Duration
	p.sleepFn = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	if err := p.Authenticate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(slept) != 1 || slept[0] != 15*time.Minute {
		t.Fatalf("slept=%v want one 15m wait", slept)
	}
}

func TestAuthenticateNonRateLimitErrorIsFatal(t *testing.T) {
	api := &fakeAPI{meErrs: []error{errors.New("bad credentials")}}
	p, _ := newTestPoller(t, api, &recordingDispatcher{})
	if err := p.Authenticate(context.Background()); err == nil {
		t.Fatal("expected fatal authentication error")
	}
}
