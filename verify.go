package main

import (
	"fmt"

	"github.com/gabriel-vasile/mimetype"
)

const gzipMIME = "application/gzip"

// archiveVerification is the outcome of sniffing a downloaded archive
type archiveVerification struct {
	ContentType string
	OK          bool
}

// verifyArchiveFile checks that path holds gzip data, which is what
// Papertrail serves for every archive.
func verifyArchiveFile(path string) (archiveVerification, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return archiveVerification{}, fmt.Errorf("failed to detect content type of %s: %w", path, err)
	}
	log.WithField("path", path).Debugf("Detected content type %s", mtype.String())
	return archiveVerification{
		ContentType: mtype.String(),
		OK:          mtype.Is(gzipMIME),
	}, nil
}
