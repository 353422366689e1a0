package sessionlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Nistp/SerialTerminalGUI/serialio"
)

func TestLogger_WritesFormattedLines(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(zerolog.Nop(), dir)
	require.NoError(t, err)

	at := time.Date(2024, 5, 2, 9, 31, 5, 123_000_000, time.UTC)
	l.Write(serialio.Message{Direction: serialio.DirTX, Text: "AT+CSQ", At: at})
	l.Write(serialio.Message{Direction: serialio.DirRX, Text: "+CSQ: 7", At: at})
	require.NoError(t, l.Close())

	data, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	require.Equal(t,
		"2024-05-02T09:31:05.123 [TX   ] AT+CSQ\n"+
			"2024-05-02T09:31:05.123 [RX   ] +CSQ: 7\n",
		string(data))
}

func TestLogger_CreatesDirAndSessionFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	l, err := Open(zerolog.Nop(), dir)
	require.NoError(t, err)
	defer l.Close()

	require.Contains(t, filepath.Base(l.Path()), "session_")
	_, err = os.Stat(l.Path())
	require.NoError(t, err)
}

func TestLogger_WriteAfterCloseIsNoop(t *testing.T) {
	l, err := Open(zerolog.Nop(), t.TempDir())
	require.NoError(t, err)
	require.NoError(t, l.Close())
	l.Write(serialio.Message{Direction: serialio.DirInfo, Text: "late", At: time.Now()})
}
