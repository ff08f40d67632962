package evaluator

import (
	"bytes"
	"compress/zlib"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-arena/compression-arena/internal/challenge"
)

func testSpec(t *testing.T, reference []byte) *challenge.Spec {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "input.bin")
	require.NoError(t, os.WriteFile(path, reference, 0o644))
	return challenge.New("compression-v1", "Compression Challenge", "desc", "scoring", path)
}

func defaultLimits() Limits {
	return Limits{Timeout: 2 * time.Second, MemoryMB: 64, MaxOutput: 1 << 20}
}

func zlibCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestEvaluate_HappyPath(t *testing.T) {
	reference := bytes.Repeat([]byte("AAAA"), 2500)
	spec := testSpec(t, reference)
	compressed := zlibCompress(t, reference)
	decompressor := `function decompress(d) { return lib.zlib.inflate(d); }`

	res := Evaluate(spec, compressed, decompressor, defaultLimits())

	require.True(t, res.Success, "error: %s %s", res.Error, res.ErrorCode)
	assert.Equal(t, len(compressed)+len(decompressor), res.Score)
	assert.Equal(t, 10000, res.Breakdown["original_size"])
}

func TestEvaluate_Mismatch(t *testing.T) {
	reference := bytes.Repeat([]byte("AAAA"), 2500)
	spec := testSpec(t, reference)
	compressed := zlibCompress(t, bytes.Repeat([]byte("BBBB"), 2500))
	decompressor := `function decompress(d) { return lib.zlib.inflate(d); }`

	res := Evaluate(spec, compressed, decompressor, defaultLimits())

	require.False(t, res.Success)
	assert.Equal(t, "DECOMPRESSION_MISMATCH", res.ErrorCode)
	assert.Equal(t, 0, res.Breakdown["first_diff_at"])
	assert.Equal(t, 10000, res.Breakdown["expected_size"])
	assert.Equal(t, 10000, res.Breakdown["actual_size"])
}

func TestEvaluate_ForbiddenImport(t *testing.T) {
	reference := []byte("hello world")
	spec := testSpec(t, reference)
	decompressor := `function decompress(d) { return process.env; }`

	res := Evaluate(spec, []byte("x"), decompressor, defaultLimits())

	require.False(t, res.Success)
	assert.Equal(t, "DECOMPRESSION_ValidationError", res.ErrorCode)
}

func TestEvaluate_Timeout(t *testing.T) {
	reference := []byte("hello world")
	spec := testSpec(t, reference)
	decompressor := `function decompress(d) { while (true) {} }`
	limits := defaultLimits()
	limits.Timeout = 200 * time.Millisecond

	res := Evaluate(spec, []byte("x"), decompressor, limits)

	require.False(t, res.Success)
	assert.Equal(t, "DECOMPRESSION_TimeoutError", res.ErrorCode)
}

func TestEvaluate_EmptyCompressed(t *testing.T) {
	spec := testSpec(t, []byte("hello"))
	res := Evaluate(spec, []byte{}, "function decompress(d) { return d; }", defaultLimits())
	require.False(t, res.Success)
	assert.Equal(t, "EMPTY_COMPRESSED", res.ErrorCode)
}

func TestEvaluate_EmptyDecompressor(t *testing.T) {
	spec := testSpec(t, []byte("hello"))
	res := Evaluate(spec, []byte("x"), "", defaultLimits())
	require.False(t, res.Success)
	assert.Equal(t, "EMPTY_DECOMPRESSOR", res.ErrorCode)
}

func TestEvaluate_CodeTooLarge(t *testing.T) {
	spec := testSpec(t, []byte("hello"))
	huge := make([]byte, challenge.MaxDecompressorBytes+1)
	for i := range huge {
		huge[i] = 'a'
	}
	res := Evaluate(spec, []byte("x"), string(huge), defaultLimits())
	require.False(t, res.Success)
	assert.Equal(t, "CODE_TOO_LARGE", res.ErrorCode)
}

func TestEvaluate_CompressedTooLarge(t *testing.T) {
	reference := []byte("hello")
	spec := testSpec(t, reference)
	oversized := make([]byte, 2*len(reference)+1)
	res := Evaluate(spec, oversized, "function decompress(d) { return d; }", defaultLimits())
	require.False(t, res.Success)
	assert.Equal(t, "COMPRESSED_TOO_LARGE", res.ErrorCode)
}

func TestEvaluate_WrongReturnType(t *testing.T) {
	spec := testSpec(t, []byte("hello"))
	res := Evaluate(spec, []byte("x"), "function decompress(d) { return 123; }", defaultLimits())
	require.False(t, res.Success)
	assert.Equal(t, "WRONG_RETURN_TYPE", res.ErrorCode)
}
