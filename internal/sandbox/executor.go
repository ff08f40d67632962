package sandbox

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
)

// ErrorType classifies why an execution did not succeed, carried
// verbatim into the challenge evaluator's error_code (DECOMPRESSION_<ErrorType>),
// except ErrorWrongReturnType, which the evaluator reports as WRONG_RETURN_TYPE.
type ErrorType string

const (
	ErrorValidation      ErrorType = "ValidationError"
	ErrorTimeout         ErrorType = "TimeoutError"
	ErrorMemory          ErrorType = "MemoryError"
	ErrorRuntime         ErrorType = "RuntimeError"
	ErrorSandbox         ErrorType = "SandboxError"
	ErrorWrongReturnType ErrorType = "WrongReturnType"
)

// Result is the executor's contract response: either a successful
// byte-sequence result, or a typed failure, always carrying captured
// output and timing.
type Result struct {
	Success         bool
	ReturnValue     []byte
	Error           string
	ErrorType       ErrorType
	Stdout          string
	Stderr          string
	ExecutionTimeMS int64
}

// Limits bundles the resource caps applied to a single evaluation.
type Limits struct {
	Timeout   time.Duration
	MemoryMB  int
	MaxOutput int
}

// Execute validates then runs a decompressor program in a freshly
// constructed goja.Runtime, calling entryName with a single Uint8Array
// argument built from args. Each call gets its own Runtime: goja
// Runtimes are not safe for concurrent reuse, and a fresh one per
// evaluation means there is no shared mutable host state across
// submissions for a misbehaving program to corrupt.
func Execute(source string, entryName string, args []byte, limits Limits) Result {
	start := time.Now()

	v := Validate(source)
	if !v.Valid {
		return Result{
			Success:   false,
			Error:     fmt.Sprintf("validation failed: %v", v.Violations),
			ErrorType: ErrorValidation,
		}
	}

	type outcome struct {
		res Result
	}
	done := make(chan outcome, 1)

	rt := goja.New()
	rt.SetMemoryLimit(uint64(limits.MemoryMB) * 1024 * 1024)

	stdout := newBoundedWriter(limits.MaxOutput)
	stderr := newBoundedWriter(limits.MaxOutput)

	go func() {
		defer func() {
			// A panic escaping runInRuntime (e.g. a goja internal panic
			// on an interrupted runtime mid-unwind) must not take down
			// the worker pool; surface it as a SandboxError instead.
			if r := recover(); r != nil {
				done <- outcome{res: Result{Success: false, Error: fmt.Sprintf("%v", r), ErrorType: ErrorSandbox}}
			}
		}()
		res := runInRuntime(rt, source, entryName, args, stdout, stderr)
		done <- outcome{res: res}
	}()

	timer := time.NewTimer(limits.Timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		res := out.res
		res.ExecutionTimeMS = time.Since(start).Milliseconds()
		res.Stdout = stdout.String()
		res.Stderr = stderr.String()
		return res
	case <-timer.C:
		rt.Interrupt("sandbox: wall-clock timeout")
		grace := time.NewTimer(2 * time.Second)
		defer grace.Stop()
		select {
		case out := <-done:
			res := out.res
			res.ExecutionTimeMS = time.Since(start).Milliseconds()
			res.Stdout = stdout.String()
			res.Stderr = stderr.String()
			return res
		case <-grace.C:
			// The worker goroutine is abandoned, never waited on again;
			// its goja.Runtime becomes unreachable garbage once it
			// eventually unwinds.
			return Result{
				Success:         false,
				ErrorType:       ErrorTimeout,
				Error:           "decompressor exceeded wall-clock timeout",
				ExecutionTimeMS: limits.Timeout.Milliseconds(),
				Stdout:          stdout.String(),
				Stderr:          stderr.String(),
			}
		}
	}
}

// runInRuntime performs the actual load-resolve-invoke sequence inside
// the isolated worker. It must never be called from more than one
// goroutine against the same rt.
func runInRuntime(rt *goja.Runtime, source, entryName string, args []byte, stdout, stderr *boundedWriter) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			if ierr, ok := r.(*goja.InterruptedError); ok {
				result = Result{Success: false, ErrorType: ErrorTimeout, Error: ierr.Error()}
				return
			}
			if jsErr, ok := r.(*goja.Exception); ok {
				result = Result{Success: false, ErrorType: classifyRuntimeError(jsErr.Error()), Error: jsErr.Error()}
				return
			}
			msg := fmt.Sprintf("%v", r)
			result = Result{Success: false, ErrorType: classifySandboxPanic(msg), Error: msg}
		}
	}()

	if err := installCapabilities(rt); err != nil {
		return Result{Success: false, ErrorType: ErrorSandbox, Error: err.Error()}
	}
	if err := installConsole(rt, stdout, stderr); err != nil {
		return Result{Success: false, ErrorType: ErrorSandbox, Error: err.Error()}
	}

	var ierr *goja.InterruptedError
	if _, err := rt.RunString(source); err != nil {
		if errors.As(err, &ierr) {
			return Result{Success: false, ErrorType: ErrorTimeout, Error: err.Error()}
		}
		return Result{Success: false, ErrorType: classifyRuntimeError(err.Error()), Error: err.Error()}
	}

	entry := rt.Get(entryName)
	if entry == nil || goja.IsUndefined(entry) {
		return Result{Success: false, ErrorType: ErrorRuntime, Error: fmt.Sprintf("entry function %q is not defined", entryName)}
	}
	fn, ok := goja.AssertFunction(entry)
	if !ok {
		return Result{Success: false, ErrorType: ErrorRuntime, Error: fmt.Sprintf("%q is not callable", entryName)}
	}

	input := newUint8Array(rt, args)
	ret, err := fn(goja.Undefined(), input)
	if err != nil {
		if errors.As(err, &ierr) {
			return Result{Success: false, ErrorType: ErrorTimeout, Error: err.Error()}
		}
		return Result{Success: false, ErrorType: classifyRuntimeError(err.Error()), Error: err.Error()}
	}

	out, err := extractBytes(rt, ret)
	if err != nil {
		return Result{Success: false, ErrorType: ErrorWrongReturnType, Error: fmt.Sprintf("return value: %s", err)}
	}

	return Result{Success: true, ReturnValue: out}
}

// classifyRuntimeError distinguishes a Runtime.SetMemoryLimit breach from
// an ordinary script error so DECOMPRESSION_MemoryError is reachable,
// not just declared: goja reports the former as a plain error/exception
// whose message names the memory limit, rather than a distinct type.
func classifyRuntimeError(msg string) ErrorType {
	if isMemoryLimitError(msg) {
		return ErrorMemory
	}
	return ErrorRuntime
}

// classifySandboxPanic is the same classification applied to a recovered
// panic that isn't a *goja.InterruptedError or *goja.Exception.
func classifySandboxPanic(msg string) ErrorType {
	if isMemoryLimitError(msg) {
		return ErrorMemory
	}
	return ErrorSandbox
}

func isMemoryLimitError(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "memory limit")
}

// installConsole binds console.log/console.error to the bounded output
// writers. goja has no real stdout/stderr; this is the only place
// output can escape the runtime.
func installConsole(rt *goja.Runtime, stdout, stderr *boundedWriter) error {
	console := rt.NewObject()
	_ = console.Set("log", rt.ToValue(func(call goja.FunctionCall) goja.Value {
		args := make([]interface{}, len(call.Arguments))
		for i, a := range call.Arguments {
			args[i] = a.Export()
		}
		stdout.writeArgs(args)
		return goja.Undefined()
	}))
	_ = console.Set("error", rt.ToValue(func(call goja.FunctionCall) goja.Value {
		args := make([]interface{}, len(call.Arguments))
		for i, a := range call.Arguments {
			args[i] = a.Export()
		}
		stderr.writeArgs(args)
		return goja.Undefined()
	}))
	return rt.Set("console", console)
}
