package prattui

import (
	"bytes"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/pratchat/prat/internal/chat"
	"github.com/pratchat/prat/internal/composer"
)

// attachFile reads the file and hands it to the composer, which owns
// validation (size, content type) and the upload lifecycle. Uploads are
// size-capped, so buffering the payload is fine.
func (m *Model) attachFile(path string) error {
	path = expandHome(path)
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("attach: %s is a directory", path)
	}
	if info.Size() > int64(m.cfg.Composer.MaxUploadMB)<<20 {
		return composer.ErrAttachmentTooLarge
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("attach: %w", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = m.comp.Attach(chat.Upload{
		Filename:    filepath.Base(path),
		ContentType: contentType,
		Size:        info.Size(),
		Data:        bytes.NewReader(payload),
	})
	return err
}

func expandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
