package sandbox

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"compress/zlib"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/dop251/goja"
	"github.com/ulikunitz/xz"
)

// installCapabilities binds the single `lib` global exposing every
// allow-listed primitive to the sandboxed program. Nothing else reaches
// the host: no filesystem, no network, no process, no environment.
func installCapabilities(rt *goja.Runtime) error {
	lib := rt.NewObject()

	for name, builder := range map[string]func(*goja.Runtime) *goja.Object{
		"zlib":     buildZlib,
		"gzip":     buildGzip,
		"bzip2":    buildBzip2,
		"lzma":     buildLzma,
		"hashlib":  buildHashlib,
		"base64":   buildBase64,
		"binascii": buildBinascii,
		"struct":   buildStruct,
		"time":     buildTime,
	} {
		if err := lib.Set(name, builder(rt)); err != nil {
			return fmt.Errorf("sandbox: bind lib.%s: %w", name, err)
		}
	}

	return rt.Set("lib", lib)
}

func hostFunc(rt *goja.Runtime, obj *goja.Object, name string, fn func(goja.FunctionCall) goja.Value) {
	_ = obj.Set(name, rt.ToValue(fn))
}

func buildZlib(rt *goja.Runtime) *goja.Object {
	obj := rt.NewObject()
	hostFunc(rt, obj, "deflate", func(call goja.FunctionCall) goja.Value {
		data, err := extractBytes(rt, call.Argument(0))
		if err != nil {
			panic(rt.NewTypeError("zlib.deflate: %s", err))
		}
		var buf bytes.Buffer
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			panic(rt.NewGoError(err))
		}
		if err := w.Close(); err != nil {
			panic(rt.NewGoError(err))
		}
		return newUint8Array(rt, buf.Bytes())
	})
	hostFunc(rt, obj, "inflate", func(call goja.FunctionCall) goja.Value {
		data, err := extractBytes(rt, call.Argument(0))
		if err != nil {
			panic(rt.NewTypeError("zlib.inflate: %s", err))
		}
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			panic(rt.NewGoError(err))
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			panic(rt.NewGoError(err))
		}
		return newUint8Array(rt, out)
	})
	return obj
}

func buildGzip(rt *goja.Runtime) *goja.Object {
	obj := rt.NewObject()
	hostFunc(rt, obj, "compress", func(call goja.FunctionCall) goja.Value {
		data, err := extractBytes(rt, call.Argument(0))
		if err != nil {
			panic(rt.NewTypeError("gzip.compress: %s", err))
		}
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			panic(rt.NewGoError(err))
		}
		if err := w.Close(); err != nil {
			panic(rt.NewGoError(err))
		}
		return newUint8Array(rt, buf.Bytes())
	})
	hostFunc(rt, obj, "decompress", func(call goja.FunctionCall) goja.Value {
		data, err := extractBytes(rt, call.Argument(0))
		if err != nil {
			panic(rt.NewTypeError("gzip.decompress: %s", err))
		}
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			panic(rt.NewGoError(err))
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			panic(rt.NewGoError(err))
		}
		return newUint8Array(rt, out)
	})
	return obj
}

// buildBzip2 exposes decode-only bz2, matching the Go standard library's
// own bzip2 package (no compressor).
func buildBzip2(rt *goja.Runtime) *goja.Object {
	obj := rt.NewObject()
	hostFunc(rt, obj, "decompress", func(call goja.FunctionCall) goja.Value {
		data, err := extractBytes(rt, call.Argument(0))
		if err != nil {
			panic(rt.NewTypeError("bzip2.decompress: %s", err))
		}
		out, err := io.ReadAll(bzip2.NewReader(bytes.NewReader(data)))
		if err != nil {
			panic(rt.NewGoError(err))
		}
		return newUint8Array(rt, out)
	})
	return obj
}

// buildLzma backs Python's lzma module with the xz container format,
// since the Go standard library has no LZMA/XZ support at all.
func buildLzma(rt *goja.Runtime) *goja.Object {
	obj := rt.NewObject()
	hostFunc(rt, obj, "compress", func(call goja.FunctionCall) goja.Value {
		data, err := extractBytes(rt, call.Argument(0))
		if err != nil {
			panic(rt.NewTypeError("lzma.compress: %s", err))
		}
		var buf bytes.Buffer
		w, err := xz.NewWriter(&buf)
		if err != nil {
			panic(rt.NewGoError(err))
		}
		if _, err := w.Write(data); err != nil {
			panic(rt.NewGoError(err))
		}
		if err := w.Close(); err != nil {
			panic(rt.NewGoError(err))
		}
		return newUint8Array(rt, buf.Bytes())
	})
	hostFunc(rt, obj, "decompress", func(call goja.FunctionCall) goja.Value {
		data, err := extractBytes(rt, call.Argument(0))
		if err != nil {
			panic(rt.NewTypeError("lzma.decompress: %s", err))
		}
		r, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			panic(rt.NewGoError(err))
		}
		out, err := io.ReadAll(r)
		if err != nil {
			panic(rt.NewGoError(err))
		}
		return newUint8Array(rt, out)
	})
	return obj
}

func buildHashlib(rt *goja.Runtime) *goja.Object {
	obj := rt.NewObject()
	digest := func(sum func([]byte) []byte) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			data, err := extractBytes(rt, call.Argument(0))
			if err != nil {
				panic(rt.NewTypeError("hashlib: %s", err))
			}
			return rt.ToValue(hex.EncodeToString(sum(data)))
		}
	}
	hostFunc(rt, obj, "sha256", digest(func(b []byte) []byte { s := sha256.Sum256(b); return s[:] }))
	hostFunc(rt, obj, "sha1", digest(func(b []byte) []byte { s := sha1.Sum(b); return s[:] }))
	hostFunc(rt, obj, "md5", digest(func(b []byte) []byte { s := md5.Sum(b); return s[:] }))
	return obj
}

func buildBase64(rt *goja.Runtime) *goja.Object {
	obj := rt.NewObject()
	hostFunc(rt, obj, "encode", func(call goja.FunctionCall) goja.Value {
		data, err := extractBytes(rt, call.Argument(0))
		if err != nil {
			panic(rt.NewTypeError("base64.encode: %s", err))
		}
		return rt.ToValue(base64.StdEncoding.EncodeToString(data))
	})
	hostFunc(rt, obj, "decode", func(call goja.FunctionCall) goja.Value {
		s := call.Argument(0).String()
		out, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			panic(rt.NewTypeError("base64.decode: %s", err))
		}
		return newUint8Array(rt, out)
	})
	return obj
}

func buildBinascii(rt *goja.Runtime) *goja.Object {
	obj := rt.NewObject()
	hostFunc(rt, obj, "hexlify", func(call goja.FunctionCall) goja.Value {
		data, err := extractBytes(rt, call.Argument(0))
		if err != nil {
			panic(rt.NewTypeError("binascii.hexlify: %s", err))
		}
		return rt.ToValue(hex.EncodeToString(data))
	})
	hostFunc(rt, obj, "unhexlify", func(call goja.FunctionCall) goja.Value {
		s := call.Argument(0).String()
		out, err := hex.DecodeString(s)
		if err != nil {
			panic(rt.NewTypeError("binascii.unhexlify: %s", err))
		}
		return newUint8Array(rt, out)
	})
	return obj
}

// buildStruct supports a practical subset of Python's struct format
// strings: an optional byte-order prefix (<, >, !, =) followed by any
// mix of B/H/I/Q (unsigned 1/2/4/8 byte) and b/h/i/q (signed).
func buildStruct(rt *goja.Runtime) *goja.Object {
	obj := rt.NewObject()
	hostFunc(rt, obj, "pack", func(call goja.FunctionCall) goja.Value {
		format := call.Argument(0).String()
		order, codes := parseStructFormat(format)
		if len(call.Arguments) < 1+len(codes) {
			panic(rt.NewTypeError("struct.pack: not enough arguments for format %q", format))
		}
		buf := new(bytes.Buffer)
		for i, code := range codes {
			v := call.Argument(1 + i).ToInteger()
			if err := writeStructField(buf, order, code, v); err != nil {
				panic(rt.NewTypeError("struct.pack: %s", err))
			}
		}
		return newUint8Array(rt, buf.Bytes())
	})
	hostFunc(rt, obj, "unpack", func(call goja.FunctionCall) goja.Value {
		format := call.Argument(0).String()
		order, codes := parseStructFormat(format)
		data, err := extractBytes(rt, call.Argument(1))
		if err != nil {
			panic(rt.NewTypeError("struct.unpack: %s", err))
		}
		r := bytes.NewReader(data)
		values := make([]interface{}, 0, len(codes))
		for _, code := range codes {
			v, err := readStructField(r, order, code)
			if err != nil {
				panic(rt.NewTypeError("struct.unpack: %s", err))
			}
			values = append(values, v)
		}
		return rt.ToValue(values)
	})
	return obj
}

func parseStructFormat(format string) (binary.ByteOrder, []byte) {
	order := binary.BigEndian // Python's native/no-prefix default is host order; big-endian is the deterministic, portable choice here.
	codes := format
	if len(format) > 0 {
		switch format[0] {
		case '<':
			order = binary.LittleEndian
			codes = format[1:]
		case '>', '!':
			order = binary.BigEndian
			codes = format[1:]
		case '=':
			order = binary.NativeEndian
			codes = format[1:]
		}
	}
	return order, []byte(codes)
}

func writeStructField(buf *bytes.Buffer, order binary.ByteOrder, code byte, v int64) error {
	switch code {
	case 'B', 'b':
		buf.WriteByte(byte(v))
	case 'H', 'h':
		b := make([]byte, 2)
		order.PutUint16(b, uint16(v))
		buf.Write(b)
	case 'I', 'i':
		b := make([]byte, 4)
		order.PutUint32(b, uint32(v))
		buf.Write(b)
	case 'Q', 'q':
		b := make([]byte, 8)
		order.PutUint64(b, uint64(v))
		buf.Write(b)
	default:
		return fmt.Errorf("unsupported format code %q", string(code))
	}
	return nil
}

func readStructField(r *bytes.Reader, order binary.ByteOrder, code byte) (int64, error) {
	switch code {
	case 'B':
		var v uint8
		err := binary.Read(r, order, &v)
		return int64(v), err
	case 'b':
		var v int8
		err := binary.Read(r, order, &v)
		return int64(v), err
	case 'H':
		var v uint16
		err := binary.Read(r, order, &v)
		return int64(v), err
	case 'h':
		var v int16
		err := binary.Read(r, order, &v)
		return int64(v), err
	case 'I':
		var v uint32
		err := binary.Read(r, order, &v)
		return int64(v), err
	case 'i':
		var v int32
		err := binary.Read(r, order, &v)
		return int64(v), err
	case 'Q':
		var v uint64
		err := binary.Read(r, order, &v)
		return int64(v), err
	case 'q':
		var v int64
		err := binary.Read(r, order, &v)
		return v, err
	default:
		return 0, fmt.Errorf("unsupported format code %q", string(code))
	}
}

// buildTime exposes only a read-only wall clock; no sleep, no timers —
// a decompressor has no legitimate reason to suspend itself.
func buildTime(rt *goja.Runtime) *goja.Object {
	obj := rt.NewObject()
	hostFunc(rt, obj, "now", func(call goja.FunctionCall) goja.Value {
		return rt.ToValue(float64(time.Now().UnixNano()) / 1e9)
	})
	return obj
}
