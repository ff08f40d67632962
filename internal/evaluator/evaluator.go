// Package evaluator couples the static validator and restricted executor
// to a challenge's reference input, producing a deterministic score for
// a (compressed blob, decompressor source) submission.
package evaluator

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/agent-arena/compression-arena/internal/challenge"
	"github.com/agent-arena/compression-arena/internal/sandbox"
)

// Result is the evaluator's verdict for one submission.
type Result struct {
	Success         bool
	Score           int
	Breakdown       map[string]interface{}
	Error           string
	ErrorCode       string
	ExecutionTimeMS int64
}

// Limits carries the executor resource caps this evaluation should
// enforce.
type Limits struct {
	Timeout   time.Duration
	MemoryMB  int
	MaxOutput int
}

// Evaluate runs the full pre-check → execute → byte-compare pipeline
// for one submission against spec's reference input.
func Evaluate(spec *challenge.Spec, compressed []byte, decompressor string, limits Limits) Result {
	compressedSize := len(compressed)
	codeSize := len([]byte(decompressor))

	if compressedSize == 0 {
		return Result{
			Breakdown: map[string]interface{}{"compressed_bytes": 0, "decompressor_bytes": codeSize},
			Error:     "compressed data is empty",
			ErrorCode: "EMPTY_COMPRESSED",
		}
	}
	if codeSize == 0 {
		return Result{
			Breakdown: map[string]interface{}{"compressed_bytes": compressedSize, "decompressor_bytes": 0},
			Error:     "decompressor code is empty",
			ErrorCode: "EMPTY_DECOMPRESSOR",
		}
	}
	if codeSize > challenge.MaxDecompressorBytes {
		return Result{
			Breakdown: map[string]interface{}{"compressed_bytes": compressedSize, "decompressor_bytes": codeSize},
			Error:     "decompressor code too large",
			ErrorCode: "CODE_TOO_LARGE",
		}
	}

	maxCompressed, err := spec.MaxCompressedSize()
	if err != nil {
		return Result{Error: err.Error(), ErrorCode: "INTERNAL_ERROR"}
	}
	if compressedSize > maxCompressed {
		return Result{
			Breakdown: map[string]interface{}{"compressed_bytes": compressedSize, "decompressor_bytes": codeSize},
			Error:     "compressed data larger than 2x reference input",
			ErrorCode: "COMPRESSED_TOO_LARGE",
		}
	}

	original, err := spec.Input()
	if err != nil {
		return Result{Error: err.Error(), ErrorCode: "INTERNAL_ERROR"}
	}
	originalHash, err := spec.InputHash()
	if err != nil {
		return Result{Error: err.Error(), ErrorCode: "INTERNAL_ERROR"}
	}

	execRes := sandbox.Execute(decompressor, "decompress", compressed, sandbox.Limits{
		Timeout:   limits.Timeout,
		MemoryMB:  limits.MemoryMB,
		MaxOutput: limits.MaxOutput,
	})

	if !execRes.Success {
		errType := execRes.ErrorType
		if errType == "" {
			errType = sandbox.ErrorRuntime
		}
		errorCode := "DECOMPRESSION_" + string(errType)
		if errType == sandbox.ErrorWrongReturnType {
			errorCode = "WRONG_RETURN_TYPE"
		}
		return Result{
			Breakdown:       map[string]interface{}{"compressed_bytes": compressedSize, "decompressor_bytes": codeSize},
			Error:           "decompression failed: " + execRes.Error,
			ErrorCode:       errorCode,
			ExecutionTimeMS: execRes.ExecutionTimeMS,
		}
	}

	decompressed := execRes.ReturnValue

	if !bytes.Equal(decompressed, original) {
		decompressedSum := sha256.Sum256(decompressed)
		decompressedHash := hex.EncodeToString(decompressedSum[:])

		diffAt := firstDiff(original, decompressed)

		return Result{
			Breakdown: map[string]interface{}{
				"compressed_bytes":   compressedSize,
				"decompressor_bytes": codeSize,
				"expected_hash":      truncateHash(originalHash),
				"actual_hash":        truncateHash(decompressedHash),
				"expected_size":      len(original),
				"actual_size":        len(decompressed),
				"first_diff_at":      diffAt,
			},
			Error:           "decompressed output does not match reference input",
			ErrorCode:       "DECOMPRESSION_MISMATCH",
			ExecutionTimeMS: execRes.ExecutionTimeMS,
		}
	}

	score := compressedSize + codeSize
	return Result{
		Success: true,
		Score:   score,
		Breakdown: map[string]interface{}{
			"compressed_bytes":   compressedSize,
			"decompressor_bytes": codeSize,
			"original_size":      len(original),
			"compression_ratio":  float64(len(original)) / float64(compressedSize),
		},
		ExecutionTimeMS: execRes.ExecutionTimeMS,
	}
}

// firstDiff returns the smallest index where a and b differ, or
// min(len(a), len(b)) if one is a proper prefix of the other.
func firstDiff(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

func truncateHash(h string) string {
	if len(h) <= 16 {
		return h
	}
	return h[:16]
}
