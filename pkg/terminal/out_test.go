package terminal

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscript(t *testing.T) {
	var screen bytes.Buffer
	w := newTranscriptWriter(&screen)
	path := filepath.Join(t.TempDir(), "transcript.txt")

	fh, err := os.Create(path)
	require.NoError(t, err)
	w.TranscribeTo(fh, false)
	w.Echo("(nview) print s\n")
	w.Write([]byte("\"hello\"\n"))

	fh, err = os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0660)
	require.NoError(t, err)
	w.TranscribeTo(fh, true)
	w.Write([]byte("quiet\n"))
	require.NoError(t, w.CloseTranscript())
	w.Write([]byte("after\n"))

	assert.Equal(t, "\"hello\"\nafter\n", screen.String())
	buf, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "(nview) print s\n\"hello\"\nquiet\n", string(buf))
}

func TestPagerCount(t *testing.T) {
	pg := &pager{rows: 2, cols: 4}
	assert.False(t, pg.count([]byte("a\nb\n")))
	assert.Equal(t, 2, pg.line)
	assert.True(t, pg.count([]byte("abcdefgh")))
	assert.Equal(t, 3, pg.col)
}

func TestPagerNotATerminal(t *testing.T) {
	var screen bytes.Buffer
	pg := &pager{out: &screen}
	pg.Arm(nil)
	assert.Equal(t, pagerOff, pg.state)
	pg.Write([]byte("x\n"))
	pg.Disarm()
	assert.Equal(t, "x\n", screen.String())
}
