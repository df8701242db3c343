// Package assets stores uploaded documents and returns a URL the analysis
// oracle can fetch them from.
package assets

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"confirmit/internal/scan/models"
)

// Store persists an uploaded document.
type Store interface {
	Upload(ctx context.Context, name, contentType string, data []byte) (models.AssetRef, error)
}

const keyPrefix = "receipts"

// ObjectKey places an upload under a dated prefix with a random name. Only
// the extension of the client supplied name is kept.
func ObjectKey(name string, now time.Time) string {
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(name, "\\", "/"))))
	if len(ext) > 8 || strings.ContainsAny(ext, " /?#%") {
		ext = ""
	}
	return path.Join(keyPrefix, now.UTC().Format("2006/01/02"), uuid.NewString()+ext)
}

func contentTypeOrDefault(contentType string) string {
	if contentType == "" {
		return "application/octet-stream"
	}
	return contentType
}
