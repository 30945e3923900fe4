package services

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// StopError aborts the whole job. Its message is stored verbatim as the
// job's import errors.
type StopError struct {
	Msg string
}

func (e *StopError) Error() string {
	return e.Msg
}

func stopf(format string, args ...any) error {
	return errors.WithStack(&StopError{Msg: fmt.Sprintf(format, args...)})
}

func IsStop(err error) bool {
	var s *StopError
	return errors.As(err, &s)
}

// StopMessage returns the message of the StopError in err's chain.
func StopMessage(err error) (string, bool) {
	var s *StopError
	if !errors.As(err, &s) {
		return "", false
	}
	return s.Msg, true
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// panicError converts a recovered value into an error carrying the stack of
// the panicking goroutine.
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return errors.WithStack(&panicked{value: r, err: err})
	}
	return errors.WithStack(&panicked{value: r})
}

type panicked struct {
	value any
	err   error
}

func (p *panicked) Error() string {
	if p.err != nil {
		return p.err.Error()
	}
	return fmt.Sprint(p.value)
}

func (p *panicked) Unwrap() error { return p.err }

// SummarizeUnexpected renders err as "<type>: <message> (at file:line function)".
// The type is that of the innermost cause, or of the recovered panic value.
func SummarizeUnexpected(err error) string {
	if err == nil {
		return ""
	}
	var typ string
	var p *panicked
	if errors.As(err, &p) {
		typ = fmt.Sprintf("panic(%T)", p.value)
	} else {
		typ = fmt.Sprintf("%T", rootCause(err))
	}
	summary := fmt.Sprintf("Unexpected error %s: %s", typ, err.Error())
	if loc := origin(err); loc != "" {
		summary += " (at " + loc + ")"
	}
	return summary
}

func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

// origin locates the deepest recorded stack in err's chain and returns its
// first frame outside the Go runtime and this file's helpers.
func origin(err error) string {
	var deepest errors.StackTrace
	for e := err; e != nil; e = errors.Unwrap(e) {
		if st, ok := e.(stackTracer); ok {
			deepest = st.StackTrace()
		}
	}
	for i, f := range skipPanicFrames(deepest) {
		if i == 0 && isHelperFrame(fmt.Sprintf("%n", f)) {
			continue
		}
		if fn := fmt.Sprintf("%+s", f); strings.HasPrefix(fn, "runtime.") || strings.HasPrefix(fn, "internal/") {
			continue
		}
		return fmt.Sprintf("%s:%d %n", f, f, f)
	}
	return ""
}

// skipPanicFrames drops everything up to runtime.gopanic so the first frame
// is the one that panicked.
func skipPanicFrames(st errors.StackTrace) errors.StackTrace {
	for i, f := range st {
		if fmt.Sprintf("%n", f) == "gopanic" {
			return st[i+1:]
		}
	}
	return st
}

func isHelperFrame(name string) bool {
	return name == "stopf" || name == "panicError"
}
