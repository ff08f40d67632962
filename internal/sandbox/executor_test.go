package sandbox

import (
	"bytes"
	"compress/zlib"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultLimits() Limits {
	return Limits{Timeout: 2 * time.Second, MemoryMB: 64, MaxOutput: 1 << 20}
}

func TestExecute_HappyPath(t *testing.T) {
	reference := bytes.Repeat([]byte("AAAA"), 2500)
	var compressed bytes.Buffer
	w := zlib.NewWriter(&compressed)
	_, err := w.Write(reference)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	src := `function decompress(d) { return lib.zlib.inflate(d); }`
	res := Execute(src, "decompress", compressed.Bytes(), defaultLimits())

	require.True(t, res.Success, "error: %s (%s)", res.Error, res.ErrorType)
	assert.Equal(t, reference, res.ReturnValue)
}

func TestExecute_ForbiddenImportNeverSpawnsWorker(t *testing.T) {
	src := `function decompress(d) { return process.env.SECRET; }`
	res := Execute(src, "decompress", []byte("x"), defaultLimits())
	require.False(t, res.Success)
	assert.Equal(t, ErrorValidation, res.ErrorType)
}

func TestExecute_Timeout(t *testing.T) {
	src := `function decompress(d) { while (true) {} }`
	limits := defaultLimits()
	limits.Timeout = 200 * time.Millisecond
	start := time.Now()
	res := Execute(src, "decompress", []byte("x"), limits)
	elapsed := time.Since(start)

	require.False(t, res.Success)
	assert.Equal(t, ErrorTimeout, res.ErrorType)
	assert.Less(t, elapsed, limits.Timeout+3*time.Second)
}

func TestExecute_WrongReturnType(t *testing.T) {
	src := `function decompress(d) { return 42; }`
	res := Execute(src, "decompress", []byte("x"), defaultLimits())
	require.False(t, res.Success)
	assert.Equal(t, ErrorWrongReturnType, res.ErrorType)
}

func TestExecute_RuntimeException(t *testing.T) {
	src := `function decompress(d) { throw new Error("boom"); }`
	res := Execute(src, "decompress", []byte("x"), defaultLimits())
	require.False(t, res.Success)
	assert.Equal(t, ErrorRuntime, res.ErrorType)
}

func TestExecute_MissingEntryFunction(t *testing.T) {
	src := `function notDecompress(d) { return d; }`
	res := Execute(src, "decompress", []byte("x"), defaultLimits())
	require.False(t, res.Success)
	assert.Equal(t, ErrorRuntime, res.ErrorType)
}

func TestExecute_CapturesConsoleOutput(t *testing.T) {
	src := `function decompress(d) { console.log("hello", 1); return d; }`
	res := Execute(src, "decompress", []byte("hi"), defaultLimits())
	require.True(t, res.Success)
	assert.Contains(t, res.Stdout, "hello 1")
}
