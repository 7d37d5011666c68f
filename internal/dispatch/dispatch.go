package dispatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"memebot/internal/logging"
)

// Poster is the delivery surface of the platform client.
type Poster interface {
	PostReply(ctx context.Context, targetID, text, mediaID string) error
	UploadMedia(ctx context.Context, media []byte) (string, error)
}

// DeliveryError is returned only after the dispatcher's own
// image-to-text fallback is exhausted.
type DeliveryError struct {
	TargetID string
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver reply to %s: %v", e.TargetID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Dispatcher posts replies, degrading from image+text to text-only
// when the image path fails.
type Dispatcher struct {
	poster  Poster
	tempDir string
}

func New(poster Poster, tempDir string) *Dispatcher {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Dispatcher{poster: poster, tempDir: tempDir}
}

// Deliver posts one reply to targetID. When imageBytes is non-nil the
// image is staged to a transient file, uploaded, and attached; any
// failure on that path is a logged warning and the reply falls through
// to text-only. A text-only failure is the caller's problem.
func (d *Dispatcher) Deliver(ctx context.Context, targetID, text string, imageBytes []byte) error {
	if len(imageBytes) > 0 {
		err := d.deliverWithImage(ctx, targetID, text, imageBytes)
		if err == nil {
			return nil
		}
		logging.Warn("image_reply_failed", map[string]any{"target_id": targetID, "error": err.Error()})
	}
	if err := d.poster.PostReply(ctx, targetID, text, ""); err != nil {
		return &DeliveryError{TargetID: targetID, Err: err}
	}
	return nil
}

func (d *Dispatcher) deliverWithImage(ctx context.Context, targetID, text string, imageBytes []byte) error {
	path := filepath.Join(d.tempDir, uuid.NewString()+".png")
	if err := os.WriteFile(path, imageBytes, 0o644); err != nil {
		return err
	}
	defer d.cleanup(path)
	staged, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	mediaID, err := d.poster.UploadMedia(ctx, staged)
	if err != nil {
		return err
	}
	return d.poster.PostReply(ctx, targetID, text, mediaID)
}

// cleanup removes the transient image on every exit path. A removal
// failure is logged, not escalated.
func (d *Dispatcher) cleanup(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logging.Warn("temp_image_cleanup_failed", map[string]any{"path": path, "error": err.Error()})
	}
}
