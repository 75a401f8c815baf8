package thread

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArchiveKeyJoinsPrefixAndID(t *testing.T) {
	assert.Equal(t, "threads/abc123.jsonl", archiveKey("threads", "abc123"))
	assert.Equal(t, "abc123.jsonl", archiveKey("", "abc123"))
}
