package sandbox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_AcceptsCapabilityUsage(t *testing.T) {
	src := `function decompress(d) { return lib.zlib.inflate(d); }`
	res := Validate(src)
	assert.True(t, res.Valid, "violations: %v", res.Violations)
}

func TestValidate_RejectsForbiddenIdentifier(t *testing.T) {
	cases := []string{
		`eval("1+1")`,
		`new Function("return 1")()`,
		`globalThis.foo = 1`,
		`Reflect.get({}, "a")`,
	}
	for _, src := range cases {
		res := Validate(src)
		assert.False(t, res.Valid, "expected rejection for: %s", src)
		require.NotEmpty(t, res.Violations)
	}
}

func TestValidate_RejectsForbiddenAttribute(t *testing.T) {
	res := Validate(`var x = {}; x.__proto__.foo = 1;`)
	assert.False(t, res.Valid)
}

func TestValidate_RejectsForbiddenAttributeAsString(t *testing.T) {
	res := Validate(`var k = "constructor"; ({})[k];`)
	assert.False(t, res.Valid)
}

func TestValidate_RejectsShellMetacharacters(t *testing.T) {
	res := Validate(`var cmd = "; rm -rf /";`)
	assert.False(t, res.Valid)
}

func TestValidate_RejectsOversizedSource(t *testing.T) {
	src := "function decompress(d) { return d; } // " + strings.Repeat("a", MaxSourceBytes)
	res := Validate(src)
	assert.False(t, res.Valid)
}

func TestValidate_RejectsUnparseableSource(t *testing.T) {
	res := Validate(`function decompress(d) { return d`)
	assert.False(t, res.Valid)
}

func TestValidate_Deterministic(t *testing.T) {
	src := `function decompress(d) { return lib.gzip.decompress(d); }`
	a := Validate(src)
	b := Validate(src)
	assert.Equal(t, a, b)
}
