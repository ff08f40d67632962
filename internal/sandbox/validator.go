// Package sandbox implements the static validator and restricted executor:
// the two fences a submitted decompressor program must pass before its
// output is trusted.
package sandbox

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/dop251/goja/file"
	"github.com/dop251/goja/parser"
)

// MaxSourceBytes is the hard ceiling on decompressor source size. It has
// the same value as challenge.MaxDecompressorBytes, the separate constant
// behind the challenge evaluator's CODE_TOO_LARGE pre-check.
const MaxSourceBytes = 100_000

// forbiddenIdentifiers is the closed set of globals that would let a
// program escape the capability object: the ECMAScript analogues of
// forbidden dynamic-language builtins like eval, exec, and __import__.
var forbiddenIdentifiers = map[string]bool{
	"eval":        true,
	"Function":    true,
	"require":     true,
	"process":     true,
	"global":      true,
	"globalThis":  true,
	"WebAssembly": true,
	"Proxy":       true,
	"Reflect":     true,
}

// forbiddenAttributes is the closed set of property names that reach for
// prototype/reflection machinery: the ECMAScript analogues of
// __class__, __globals__, __subclasses__, etc.
var forbiddenAttributes = map[string]bool{
	"__proto__":          true,
	"constructor":        true,
	"prototype":          true,
	"__defineGetter__":   true,
	"__defineSetter__":   true,
	"__lookupGetter__":   true,
	"__lookupSetter__":   true,
}

// shellMetacharacterPattern flags string literals that look like an
// attempt to shell out, even though no sandboxed program here has any
// path to a shell. Kept as defense in depth against future capability
// additions.
var shellMetacharacterPattern = regexp.MustCompile(`(?i);\s*(rm|cat|ls|wget|curl|nc|bash|sh)\b|\|\s*(sh|bash)\b|\$\(`)

// Result is the validator's verdict.
type Result struct {
	Valid      bool
	Violations []string
}

// Validate performs a conservative, allow-list syntactic check over
// decompressor source text before any execution is attempted. It is a
// pure function: no I/O, no partial execution.
func Validate(source string) Result {
	var violations []string

	if len(source) > MaxSourceBytes {
		violations = append(violations, fmt.Sprintf("source exceeds %d bytes", MaxSourceBytes))
		return Result{Valid: false, Violations: violations}
	}

	fset := file.NewFileSet()
	prog, err := parser.ParseFile(fset, "decompressor.js", source, 0)
	if err != nil {
		violations = append(violations, fmt.Sprintf("parse error: %s", err))
		return Result{Valid: false, Violations: violations}
	}

	walkAST(reflect.ValueOf(prog), map[reflect.Value]bool{}, &violations)

	if len(violations) > 0 {
		return Result{Valid: false, Violations: dedupe(violations)}
	}
	return Result{Valid: true}
}

// walkAST recursively inspects every node of the parsed program. goja's
// ast package has no built-in Walk/visitor, so this traverses the tree
// generically by reflection, classifying nodes by their Go type name
// rather than hardcoding field layouts that vary across node kinds.
func walkAST(v reflect.Value, seen map[reflect.Value]bool, violations *[]string) {
	if !v.IsValid() {
		return
	}

	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return
		}
		if v.Kind() == reflect.Ptr {
			if seen[v] {
				return
			}
			seen[v] = true
		}
		walkAST(v.Elem(), seen, violations)
		return
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			walkAST(v.Index(i), seen, violations)
		}
		return
	case reflect.Struct:
		inspectNode(v, violations)
		for i := 0; i < v.NumField(); i++ {
			field := v.Type().Field(i)
			if !field.IsExported() {
				continue
			}
			walkAST(v.Field(i), seen, violations)
		}
		return
	default:
		return
	}
}

// inspectNode applies the forbidden-identifier, forbidden-attribute, and
// forbidden-string-literal rules to a single AST node, based on its Go
// type name (e.g. "Identifier", "StringLiteral", "DotExpression").
func inspectNode(v reflect.Value, violations *[]string) {
	typeName := v.Type().Name()

	switch {
	case strings.Contains(typeName, "Identifier"):
		if name, ok := stringField(v, "Name"); ok {
			if forbiddenIdentifiers[name] {
				*violations = append(*violations, fmt.Sprintf("forbidden identifier: %s", name))
			}
		}

	case strings.Contains(typeName, "StringLiteral"):
		if value, ok := stringField(v, "Value"); ok {
			if forbiddenAttributes[value] {
				*violations = append(*violations, fmt.Sprintf("forbidden attribute name in string literal: %s", value))
			}
			if shellMetacharacterPattern.MatchString(value) {
				*violations = append(*violations, fmt.Sprintf("shell metacharacter pattern in string literal: %q", value))
			}
		}

	case strings.Contains(typeName, "DotExpression"):
		if name, ok := identifierField(v, "Identifier"); ok {
			if forbiddenAttributes[name] {
				*violations = append(*violations, fmt.Sprintf("forbidden attribute access: %s", name))
			}
		}
	}
}

// stringField reads a string-kinded exported field by name, tolerating
// types whose field is itself a named string type rather than a bare
// string.
func stringField(v reflect.Value, name string) (string, bool) {
	f := v.FieldByName(name)
	if !f.IsValid() {
		return "", false
	}
	if f.Kind() == reflect.String {
		return f.String(), true
	}
	return "", false
}

// identifierField reads a nested Identifier-shaped field (as found on
// DotExpression.Identifier) and returns its Name.
func identifierField(v reflect.Value, name string) (string, bool) {
	f := v.FieldByName(name)
	if !f.IsValid() {
		return "", false
	}
	for f.Kind() == reflect.Ptr || f.Kind() == reflect.Interface {
		if f.IsNil() {
			return "", false
		}
		f = f.Elem()
	}
	if f.Kind() != reflect.Struct {
		return "", false
	}
	return stringField(f, "Name")
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
