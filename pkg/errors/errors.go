// Package errors defines the error taxonomy shared by every pipeline stage:
// format, consistency, numeric and configuration failures. Stage code wraps
// one of the sentinels in an AppError carrying the file, line and split that
// triggered it so a failed run can be reproduced from the message alone.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrFormat      = errors.New("format error")
	ErrConsistency = errors.New("consistency error")
	ErrNumeric     = errors.New("numeric error")
	ErrConfig      = errors.New("configuration error")
)

// Exit codes returned by the command-line tools.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitConfig      = 2
	ExitFormat      = 3
	ExitConsistency = 4
	ExitNumeric     = 5
)

type AppError struct {
	Err     error
	Message string
	File    string
	Line    int
	Split   string
}

func (e *AppError) Error() string {
	var loc []string
	if e.File != "" {
		if e.Line > 0 {
			loc = append(loc, fmt.Sprintf("%s:%d", e.File, e.Line))
		} else {
			loc = append(loc, e.File)
		}
	}
	if e.Split != "" {
		loc = append(loc, "split "+e.Split)
	}
	if len(loc) == 0 {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Err.Error(), e.Message, strings.Join(loc, ", "))
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: message,
	}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
	}
}

// At returns a copy of e annotated with a file position. A zero line keeps
// only the file name.
func (e *AppError) At(file string, line int) *AppError {
	c := *e
	c.File = file
	c.Line = line
	return &c
}

// InSplit returns a copy of e annotated with the data split it concerns.
func (e *AppError) InSplit(split string) *AppError {
	c := *e
	c.Split = split
	return &c
}

// WithFile annotates err with a file name if it is an AppError that does not
// carry one yet. Other errors are returned unchanged.
func WithFile(err error, file string) error {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.File == "" {
		return appErr.At(file, appErr.Line)
	}
	return err
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch {
	case errors.Is(err, ErrConfig):
		return ExitConfig
	case errors.Is(err, ErrFormat):
		return ExitFormat
	case errors.Is(err, ErrConsistency):
		return ExitConsistency
	case errors.Is(err, ErrNumeric):
		return ExitNumeric
	default:
		return ExitFailure
	}
}

// Class names the taxonomy bucket of err for metric labels.
func Class(err error) string {
	switch ExitCode(err) {
	case ExitOK:
		return "none"
	case ExitConfig:
		return "config"
	case ExitFormat:
		return "format"
	case ExitConsistency:
		return "consistency"
	case ExitNumeric:
		return "numeric"
	default:
		return "other"
	}
}
