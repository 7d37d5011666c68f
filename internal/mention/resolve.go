package mention

import (
	"context"

	"memebot/internal/logging"
	"memebot/internal/model"
)

// TweetFetcher is the single lookup resolution needs.
type TweetFetcher interface {
	GetTweetByID(ctx context.Context, id string) (model.Mention, error)
}

// Resolve returns the mention whose text feeds generation. A mention
// with text stands on its own. An empty mention walks back one hop to
// its referenced parent; the original is returned alongside for the
// audit record. The walk-back is deliberately not recursive, and a
// parent fetch failure falls back to the original mention rather than
// propagating.
func Resolve(ctx context.Context, fetcher TweetFetcher, m model.Mention) (model.Mention, *model.Mention) {
	if m.Text != "" {
		return m, nil
	}
	if m.ReferencedParentID == "" {
		return m, nil
	}
	parent, err := fetcher.GetTweetByID(ctx, m.ReferencedParentID)
	if err != nil {
		logging.Error("parent_fetch_failed", map[string]any{"mention_id": m.ID, "parent_id": m.ReferencedParentID, "error": err.Error()})
		return m, nil
	}
	orig := m
	return parent, &orig
}
