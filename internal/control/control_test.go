package control

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavealert/wavealert360/internal/alert"
)

func newTestChannel(t *testing.T) *Channel {
	t.Helper()
	return NewChannel(filepath.Join(t.TempDir(), "led_control"), zerolog.Nop())
}

func TestChannel_WriteRead(t *testing.T) {
	ch := newTestChannel(t)

	require.NoError(t, ch.Write(TokenRed))

	token, ok := ch.Read()
	require.True(t, ok)
	assert.Equal(t, TokenRed, token)
}

func TestChannel_LatestWins(t *testing.T) {
	ch := newTestChannel(t)

	require.NoError(t, ch.Write(TokenGreen))
	require.NoError(t, ch.Write(TokenYellow))
	require.NoError(t, ch.Write(TokenOff))

	token, ok := ch.Read()
	require.True(t, ok)
	assert.Equal(t, TokenOff, token)
}

func TestChannel_RejectsInvalidToken(t *testing.T) {
	ch := newTestChannel(t)

	err := ch.Write(Token("PATTERN:PURPLE"))
	require.Error(t, err)

	_, ok := ch.Read()
	assert.False(t, ok)
}

func TestChannel_ReadMissingFile(t *testing.T) {
	ch := newTestChannel(t)

	_, ok := ch.Read()
	assert.False(t, ok)
}

func TestChannel_IgnoresGarbageContents(t *testing.T) {
	ch := newTestChannel(t)

	require.NoError(t, os.WriteFile(ch.Path(), []byte("half-writ"), 0o644))

	_, ok := ch.Read()
	assert.False(t, ok)
}

// A reader sampling the file during concurrent writes must only ever observe
// a complete token from the valid set.
func TestChannel_NoTornReads(t *testing.T) {
	ch := newTestChannel(t)
	require.NoError(t, ch.Write(TokenGreen))

	tokens := []Token{TokenRed, TokenYellow, TokenGreen, TokenOff}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			assert.NoError(t, ch.Write(tokens[i%len(tokens)]))
		}
	}()

	for i := 0; i < 200; i++ {
		if token, ok := ch.Read(); ok {
			assert.True(t, token.Valid(), "observed torn token %q", token)
		}
	}
	wg.Wait()
}

func TestTokenForLevel(t *testing.T) {
	assert.Equal(t, TokenGreen, TokenForLevel(alert.Safe))
	assert.Equal(t, TokenYellow, TokenForLevel(alert.Caution))
	assert.Equal(t, TokenRed, TokenForLevel(alert.Danger))
	assert.Equal(t, TokenGreen, TokenForLevel(alert.Demo))
}
