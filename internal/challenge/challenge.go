// Package challenge defines the in-memory challenge catalog entry: a
// fixed reference input plus the size ceilings derived from it. Loaded
// lazily, cached, immutable thereafter.
package challenge

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// MaxDecompressorBytes is the hard ceiling on decompressor source size.
const MaxDecompressorBytes = 100_000

// Spec is an immutable, lazily-loaded reference input for one challenge.
// Its reference bytes and SHA-256 digest are computed once and shared
// read-only across every evaluation of that challenge.
type Spec struct {
	ID                 string
	Title              string
	Description        string
	ScoringDescription string

	inputPath string

	once      sync.Once
	loadErr   error
	input     []byte
	inputHash string
}

// New constructs a Spec for a challenge whose reference input lives (or
// will be generated) at inputPath.
func New(id, title, description, scoringDescription, inputPath string) *Spec {
	return &Spec{
		ID:                 id,
		Title:              title,
		Description:        description,
		ScoringDescription: scoringDescription,
		inputPath:          inputPath,
	}
}

// Input returns the reference input bytes, generating and persisting a
// deterministic default the first time it's needed if no file exists
// yet. Safe for concurrent use; the load happens exactly once.
func (s *Spec) Input() ([]byte, error) {
	s.once.Do(func() {
		if _, err := os.Stat(s.inputPath); err != nil {
			if !os.IsNotExist(err) {
				s.loadErr = err
				return
			}
			if err := generateDefaultInput(s.inputPath); err != nil {
				s.loadErr = fmt.Errorf("generate default input: %w", err)
				return
			}
		}
		data, err := os.ReadFile(s.inputPath)
		if err != nil {
			s.loadErr = err
			return
		}
		sum := sha256.Sum256(data)
		s.input = data
		s.inputHash = hex.EncodeToString(sum[:])
	})
	return s.input, s.loadErr
}

// InputHash returns the lowercase hex SHA-256 of the reference input.
func (s *Spec) InputHash() (string, error) {
	if _, err := s.Input(); err != nil {
		return "", err
	}
	return s.inputHash, nil
}

// InputSize returns the reference input's byte length.
func (s *Spec) InputSize() (int, error) {
	data, err := s.Input()
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// MaxCompressedSize is the compressed-blob ceiling: twice the reference
// input size.
func (s *Spec) MaxCompressedSize() (int, error) {
	n, err := s.InputSize()
	if err != nil {
		return 0, err
	}
	return n * 2, nil
}

// generateDefaultInput writes a seeded, multi-section synthetic dataset:
// repeated text, a JSON document, semi-random bytes, and a repeating
// binary pattern, joined by a section marker. The PRNG seed is fixed so
// the generated bytes (and therefore their hash) are reproducible across
// hosts.
func generateDefaultInput(path string) error {
	rng := rand.New(rand.NewSource(42))

	var parts [][]byte

	textSamples := []string{
		strings.Repeat("The quick brown fox jumps over the lazy dog. ", 100),
		strings.Repeat("Lorem ipsum dolor sit amet, consectetur adipiscing elit. ", 50),
		strings.Repeat("AAAAAAAAAA", 500),
		strings.Repeat("ABABABABABABABAB", 200),
	}
	for _, s := range textSamples {
		parts = append(parts, []byte(s))
	}

	type user struct {
		ID     int    `json:"id"`
		Name   string `json:"name"`
		Active bool   `json:"active"`
	}
	users := make([]user, 1000)
	for i := 0; i < 1000; i++ {
		users[i] = user{ID: i, Name: fmt.Sprintf("User %d", i), Active: i%2 == 0}
	}
	doc := map[string]interface{}{
		"users": users,
		"metadata": map[string]string{
			"version":   "1.0",
			"generated": "2026-01-01",
		},
	}
	jsonBytes, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	parts = append(parts, jsonBytes)

	randomBytes := make([]byte, 10000)
	for i := range randomBytes {
		randomBytes[i] = byte(rng.Intn(256))
	}
	parts = append(parts, randomBytes)

	pattern := []byte{0x00, 0xFF, 0x55, 0xAA}
	binaryPattern := make([]byte, 0, len(pattern)*5000)
	for i := 0; i < 5000; i++ {
		binaryPattern = append(binaryPattern, pattern...)
	}
	parts = append(parts, binaryPattern)

	full := bytesJoin(parts, []byte("\n---SECTION---\n"))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, full, 0o644)
}

func bytesJoin(parts [][]byte, sep []byte) []byte {
	if len(parts) == 0 {
		return nil
	}
	n := len(sep) * (len(parts) - 1)
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for i, p := range parts {
		if i > 0 {
			out = append(out, sep...)
		}
		out = append(out, p...)
	}
	return out
}
