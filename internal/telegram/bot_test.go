package telegram

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/harun/gofer/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestSplitMessage(t *testing.T) {
	short := splitMessage("hello", messageChunkSize)
	assert.Equal(t, []string{"hello"}, short)

	long := strings.Repeat("x", messageChunkSize*2+10)
	chunks := splitMessage(long, messageChunkSize)
	assert.Len(t, chunks, 3)
	assert.Len(t, chunks[0], messageChunkSize)
	assert.Len(t, chunks[1], messageChunkSize)
	assert.Len(t, chunks[2], 10)
	assert.Equal(t, long, strings.Join(chunks, ""))
}

func TestSplitMessageKeepsRunesIntact(t *testing.T) {
	// "aö" puts a two-byte rune right at every odd byte offset, so any
	// byte-indexed split would tear one apart.
	long := strings.Repeat("aö", messageChunkSize)
	chunks := splitMessage(long, messageChunkSize)

	assert.Len(t, chunks, 2)
	for i, chunk := range chunks {
		assert.True(t, utf8.ValidString(chunk), "chunk %d is invalid UTF-8", i)
		assert.Equal(t, messageChunkSize, utf8.RuneCountInString(chunk))
	}
	assert.Equal(t, long, strings.Join(chunks, ""))
}

func TestStopWithoutStart(t *testing.T) {
	b := &Bot{config: &config.TelegramConfig{}}
	assert.Error(t, b.Stop())
}

func TestAllowlist(t *testing.T) {
	open := &Bot{config: &config.TelegramConfig{}}
	assert.True(t, open.allowed(42))

	restricted := &Bot{config: &config.TelegramConfig{Allowlist: []int64{1, 2}}}
	assert.True(t, restricted.allowed(1))
	assert.True(t, restricted.allowed(2))
	assert.False(t, restricted.allowed(42))
}

func TestSessionKey(t *testing.T) {
	assert.Equal(t, "tg-42", sessionKey(42))
	assert.Equal(t, "tg--7", sessionKey(-7))
}
