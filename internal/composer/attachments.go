package composer

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pratchat/prat/internal/chat"
)

// Attach validates a file locally, registers a pending attachment and starts
// the upload. The returned client id is the local correlation key; it never
// reaches the server. Lifecycle: uploading → {processing, ready, failed},
// then processing → ready once the derivative probe succeeds. A failed
// attachment never retries itself; the user removes it and attaches again.
func (c *Composer) Attach(up chat.Upload) (string, error) {
	if up.Size > c.cfg.MaxUploadBytes {
		return "", ErrAttachmentTooLarge
	}
	if !c.typeAllowed(up.ContentType) {
		return "", ErrAttachmentType
	}

	clientID := uuid.NewString()
	c.mu.Lock()
	c.pending = append(c.pending, chat.PendingAttachment{
		ClientID: clientID,
		Filename: up.Filename,
		Size:     up.Size,
		Status:   chat.StatusUploading,
	})
	c.mu.Unlock()
	c.notifyUpdate()

	c.async(func() { c.runUpload(clientID, up) })
	return clientID, nil
}

func (c *Composer) typeAllowed(contentType string) bool {
	if len(c.cfg.AllowedTypes) == 0 {
		return true
	}
	for _, prefix := range c.cfg.AllowedTypes {
		if strings.HasPrefix(contentType, prefix) {
			return true
		}
	}
	return false
}

// RemoveAttachment drops a pending attachment. This is the only way out of
// the failed state.
func (c *Composer) RemoveAttachment(clientID string) {
	c.mu.Lock()
	kept := c.pending[:0]
	for _, p := range c.pending {
		if p.ClientID != clientID {
			kept = append(kept, p)
		}
	}
	c.pending = kept
	c.mu.Unlock()
	c.notifyUpdate()
}

// PendingAttachments returns a copy of the pending list in attach order.
func (c *Composer) PendingAttachments() []chat.PendingAttachment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]chat.PendingAttachment(nil), c.pending...)
}

func (c *Composer) runUpload(clientID string, up chat.Upload) {
	res, err := c.client.UploadAttachment(context.Background(), up)
	if err != nil {
		c.log.Warn().Err(err).Str("file", up.Filename).Msg("attachment upload failed")
		c.updatePending(clientID, func(p *chat.PendingAttachment) {
			p.Status = chat.StatusFailed
			p.Error = err.Error()
		})
		return
	}

	if res.Status == chat.StatusReady {
		c.updatePending(clientID, func(p *chat.PendingAttachment) {
			p.MediaID = res.MediaID
			p.Status = chat.StatusReady
		})
		return
	}

	c.updatePending(clientID, func(p *chat.PendingAttachment) {
		p.MediaID = res.MediaID
		p.Status = chat.StatusProcessing
	})
	c.scheduleProbe(clientID, res.MediaID, c.cfg.ProbeAttempts)
}

// scheduleProbe polls derivative readiness with bounded attempts; exhaustion
// marks the attachment failed with a timeout error.
func (c *Composer) scheduleProbe(clientID, mediaID string, attemptsLeft int) {
	if attemptsLeft <= 0 {
		c.updatePending(clientID, func(p *chat.PendingAttachment) {
			p.Status = chat.StatusFailed
			p.Error = chat.ErrProbeTimeout.Error()
		})
		return
	}
	c.sched.After(time.Duration(c.cfg.ProbeInterval)*time.Millisecond, func() {
		c.async(func() {
			ready, err := c.client.ProbeDerivativeReady(context.Background(), mediaID)
			if err != nil {
				c.log.Debug().Err(err).Str("media", mediaID).Msg("derivative probe errored")
			}
			if ready {
				c.updatePending(clientID, func(p *chat.PendingAttachment) {
					p.Status = chat.StatusReady
				})
				return
			}
			c.scheduleProbe(clientID, mediaID, attemptsLeft-1)
		})
	})
}

// updatePending patches one pending attachment by client id. Attachments can
// vanish mid-flight (send dispatched, conversation switched); a miss is a
// no-op, not an error.
func (c *Composer) updatePending(clientID string, fn func(*chat.PendingAttachment)) {
	c.mu.Lock()
	found := false
	for i := range c.pending {
		if c.pending[i].ClientID == clientID {
			fn(&c.pending[i])
			found = true
			break
		}
	}
	c.mu.Unlock()
	if found {
		c.notifyUpdate()
	}
}
