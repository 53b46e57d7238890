package isobmff

import (
	"fmt"
	"runtime"
	"strings"
)

// Code identifies the category of error a boundary operation can report.
type Code int

const (
	// Ok is not used as an Error's code; it exists so Code's zero value has a name.
	Ok Code = iota
	InvalidInput
	InvalidData
	InvalidState
	InputRequired
	OutputRequired
	NullPointer
	NoMoreSamples
	Unsupported
	PositionMismatch
	Other
)

func (c Code) String() string {
	switch c {
	case Ok:
		return "Ok"
	case InvalidInput:
		return "InvalidInput"
	case InvalidData:
		return "InvalidData"
	case InvalidState:
		return "InvalidState"
	case InputRequired:
		return "InputRequired"
	case OutputRequired:
		return "OutputRequired"
	case NullPointer:
		return "NullPointer"
	case NoMoreSamples:
		return "NoMoreSamples"
	case Unsupported:
		return "Unsupported"
	case PositionMismatch:
		return "PositionMismatch"
	default:
		return "Other"
	}
}

// Error is the error type returned at every public boundary. It carries a
// box-path breadcrumb (the 4-CCs being decoded when the error arose,
// outermost first, rendered as "moov → trak → mdia → minf"; it holds no
// root label and no sibling indices) and the source location of the
// library code that raised it.
type Error struct {
	Code       Code
	Breadcrumb []string
	Msg        string
	File       string
	Line       int
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Code.String())
	b.WriteString(": ")
	b.WriteString(e.Msg)
	if len(e.Breadcrumb) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(e.Breadcrumb, " → "))
		b.WriteString(")")
	}
	fmt.Fprintf(&b, " [%s:%d]", e.File, e.Line)
	return b.String()
}

func errInvalidData(crumb []string, format string, args ...any) *Error {
	return wrapAtCaller(InvalidData, crumb, format, args...)
}

func errUnsupported(crumb []string, format string, args ...any) *Error {
	return wrapAtCaller(Unsupported, crumb, format, args...)
}

func errInvalidState(crumb []string, format string, args ...any) *Error {
	return wrapAtCaller(InvalidState, crumb, format, args...)
}

func errPositionMismatch(crumb []string, format string, args ...any) *Error {
	return wrapAtCaller(PositionMismatch, crumb, format, args...)
}

// wrapAtCaller is the one place that calls runtime.Caller, always with the
// same skip count, so every errXxx helper above reports its own caller's
// line rather than this file's.
func wrapAtCaller(code Code, crumb []string, format string, args ...any) *Error {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		file, line = "unknown", 0
	} else if i := strings.LastIndexByte(file, '/'); i >= 0 {
		file = file[i+1:]
	}
	return &Error{
		Code:       code,
		Breadcrumb: append([]string(nil), crumb...),
		Msg:        fmt.Sprintf(format, args...),
		File:       file,
		Line:       line,
	}
}

// withBox returns a new breadcrumb with t appended, never mutating crumb.
func withBox(crumb []string, t BoxType) []string {
	out := make([]string, len(crumb), len(crumb)+1)
	copy(out, crumb)
	return append(out, t.String())
}
