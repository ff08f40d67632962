package sandbox

import (
	"fmt"

	"github.com/dop251/goja"
)

// extractBytes pulls a []byte out of a JS value representing binary data.
// It accepts Uint8Array, ArrayBuffer, or anything goja can ExportTo as
// []byte.
func extractBytes(rt *goja.Runtime, val goja.Value) ([]byte, error) {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil, fmt.Errorf("expected Uint8Array or ArrayBuffer, got null/undefined")
	}

	exported := val.Export()

	if ab, ok := exported.(goja.ArrayBuffer); ok {
		return ab.Bytes(), nil
	}

	if b, ok := exported.([]byte); ok {
		return b, nil
	}

	var b []byte
	if err := rt.ExportTo(val, &b); err == nil {
		return b, nil
	}

	return nil, fmt.Errorf("expected Uint8Array or ArrayBuffer, got %T", exported)
}

// newUint8Array wraps a Go byte slice as a JS Uint8Array backed by a new
// ArrayBuffer. Falls back to a bare ArrayBuffer if the Uint8Array global
// has been removed from the runtime's scope.
func newUint8Array(rt *goja.Runtime, data []byte) goja.Value {
	ab := rt.NewArrayBuffer(data)
	ctor := rt.Get("Uint8Array")
	if ctor == nil || goja.IsUndefined(ctor) {
		return rt.ToValue(ab)
	}
	obj, err := rt.New(ctor, rt.ToValue(ab))
	if err != nil {
		return rt.ToValue(ab)
	}
	return obj
}
