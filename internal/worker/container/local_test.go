package container

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func frame(streamType byte, payload string) []byte {
	b := make([]byte, 8+len(payload))
	b[0] = streamType
	n := len(payload)
	b[4] = byte(n >> 24)
	b[5] = byte(n >> 16)
	b[6] = byte(n >> 8)
	b[7] = byte(n)
	copy(b[8:], payload)
	return b
}

func TestDemultiplexLogs_SeparatesStdoutAndStderr(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(frame(1, "hello out\n"))
	buf.Write(frame(2, "oops err\n"))
	buf.Write(frame(1, "more out\n"))

	stdout, stderr := demultiplexLogs(&buf)
	assert.Equal(t, "hello out\nmore out\n", stdout)
	assert.Equal(t, "oops err\n", stderr)
}

func TestDemultiplexLogs_EmptyStream(t *testing.T) {
	stdout, stderr := demultiplexLogs(&bytes.Buffer{})
	assert.Empty(t, stdout)
	assert.Empty(t, stderr)
}

func TestDemultiplexLogs_TruncatedFrameIgnored(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(frame(1, "complete\n"))
	buf.Write([]byte{1, 0, 0, 0, 0, 0, 0, 5}) // header claims 5 bytes, none follow
	stdout, _ := demultiplexLogs(&buf)
	assert.Equal(t, "complete\n", stdout)
}
