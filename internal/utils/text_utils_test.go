package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestTextProcessor_TruncateText(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	assert.Equal(t, "short", tp.TruncateText("short", 10))
	assert.Equal(t, "short", tp.TruncateText("short", 0))

	out := tp.TruncateText("abonelik iptal edildi", 7)
	assert.True(t, strings.HasPrefix(out, "abonel"))
	assert.True(t, strings.HasSuffix(out, truncationMarker))

	// Multi-byte runes are never split
	out = tp.TruncateText("çççççç", 3)
	assert.Equal(t, "ççç"+truncationMarker, out)
}

func TestTextProcessor_SanitizeUTF8(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	assert.Equal(t, "ab\ncd", tp.SanitizeUTF8("a\xffb\ncd"))
	assert.Equal(t, "tab\there", tp.SanitizeUTF8("tab\there\x00"))
}

func TestTextProcessor_ProcessText(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	in := "Your   receipt\n\n\n\nfrom   Netflix  "
	assert.Equal(t, "Your receipt\n\nfrom Netflix", tp.ProcessText(in, 100))
}
