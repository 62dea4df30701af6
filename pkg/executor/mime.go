package executor

import (
	"mime"
	"path/filepath"
)

// guessContentType falls back to octet-stream: dataset formats like
// .h5ad have no registered MIME type.
func guessContentType(filename string) string {
	ext := filepath.Ext(filename)
	if ext == "" {
		return "application/octet-stream"
	}

	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		return "application/octet-stream"
	}

	return contentType
}
