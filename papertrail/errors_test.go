package papertrail

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := &Error{Kind: KindArchives, Op: "download", Path: "/tmp/a.tsv.gz", Err: ErrAlreadyDownloading}
	assert.Equal(t, "archives: download (/tmp/a.tsv.gz): already downloading", err.Error())
	assert.ErrorIs(t, err, ErrAlreadyDownloading)

	wrapped := fmt.Errorf("refresh: %w", newError(KindGroups, "load", errors.New("boom")))
	assert.Equal(t, KindGroups, KindOf(wrapped))
	assert.Equal(t, KindGeneric, KindOf(errors.New("other")))
}

func TestExtractMessage(t *testing.T) {
	assert.Equal(t, "Group not found", extractMessage(404, []byte(`{"message":"Group not found"}`)))
	assert.Equal(t, "bad token", extractMessage(401, []byte(`{"error":"bad token"}`)))
	assert.Equal(t, "Bad Gateway", extractMessage(502, []byte("Bad Gateway")))
	assert.Equal(t, "HTTP 500", extractMessage(500, nil))
	assert.Len(t, extractMessage(500, []byte(fmt.Sprintf("%0600d", 1))), 512)
}
