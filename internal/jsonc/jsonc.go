// Package jsonc turns sweep documents into plain JSON. The documents carry
// /* ... */ block comments (including the /** ... */ form used throughout the
// experiment files). Line comments and trailing commas are not part of the
// format and are rejected.
package jsonc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tailscale/hujson"
)

var (
	// ErrUnterminatedComment marks a block comment that is never closed.
	ErrUnterminatedComment = errors.New("unterminated block comment")

	// ErrLineComment marks a // comment.
	ErrLineComment = errors.New("line comments are not allowed, use /* ... */")

	// ErrTrailingComma marks a comma after the last member of an object or
	// array.
	ErrTrailingComma = errors.New("trailing comma")
)

// SyntaxError locates a malformed document. Line and Col are 1-based.
type SyntaxError struct {
	Line int
	Col  int
	Err  error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d, column %d: %v", e.Line, e.Col, e.Err)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// Strip returns a copy of src with every block comment replaced by spaces.
// Newlines inside comments are kept, so offsets reported by encoding/json on
// the result map to the same line and column in src. src is not modified.
//
// Malformed input fails with a *SyntaxError.
func Strip(src []byte) ([]byte, error) {
	// Parse aliases its input and Standardize blanks comments in place.
	ast, err := hujson.Parse(bytes.Clone(src))
	if err != nil {
		return nil, parseError(err)
	}
	if offset, err := checkValue(&ast); err != nil {
		line, col := Position(src, int64(offset))
		return nil, &SyntaxError{Line: line, Col: col, Err: err}
	}
	ast.Standardize()
	return ast.Pack(), nil
}

// parseError converts a hujson parse failure, which carries its position only
// in the message, into a *SyntaxError.
func parseError(err error) error {
	line, col := 1, 1
	if _, scanErr := fmt.Sscanf(err.Error(), "hujson: line %d, column %d:", &line, &col); scanErr != nil {
		line, col = 1, 1
	}

	cause := errors.Unwrap(err)
	if cause == nil {
		cause = err
	}
	if errors.Is(cause, io.ErrUnexpectedEOF) && strings.HasPrefix(cause.Error(), "parsing comment") {
		cause = ErrUnterminatedComment
	}
	return &SyntaxError{Line: line, Col: col, Err: cause}
}

// checkValue walks v and returns the offset of the first line comment or
// trailing comma.
func checkValue(v *hujson.Value) (int, error) {
	if offset, err := checkExtra(v.BeforeExtra, v.StartOffset-len(v.BeforeExtra)); err != nil {
		return offset, err
	}

	switch comp := v.Value.(type) {
	case *hujson.Object:
		for i := range comp.Members {
			if offset, err := checkValue(&comp.Members[i].Name); err != nil {
				return offset, err
			}
			if offset, err := checkValue(&comp.Members[i].Value); err != nil {
				return offset, err
			}
		}
		if n := len(comp.Members); n > 0 {
			if offset, ok := trailingComma(&comp.Members[n-1].Value); ok {
				return offset, ErrTrailingComma
			}
		}
		if offset, err := checkExtra(comp.AfterExtra, v.EndOffset-1-len(comp.AfterExtra)); err != nil {
			return offset, err
		}

	case *hujson.Array:
		for i := range comp.Elements {
			if offset, err := checkValue(&comp.Elements[i]); err != nil {
				return offset, err
			}
		}
		if n := len(comp.Elements); n > 0 {
			if offset, ok := trailingComma(&comp.Elements[n-1]); ok {
				return offset, ErrTrailingComma
			}
		}
		if offset, err := checkExtra(comp.AfterExtra, v.EndOffset-1-len(comp.AfterExtra)); err != nil {
			return offset, err
		}
	}

	return checkExtra(v.AfterExtra, v.EndOffset)
}

// trailingComma reports whether the last member of a composite is followed
// by a comma, and where. hujson marks that case with a non-nil AfterExtra.
func trailingComma(last *hujson.Value) (int, bool) {
	if last.AfterExtra == nil {
		return 0, false
	}
	return last.EndOffset + len(last.AfterExtra), true
}

// checkExtra scans whitespace and comments starting at offset.
func checkExtra(b hujson.Extra, offset int) (int, error) {
	for i := 0; i < len(b); {
		switch {
		case bytes.HasPrefix(b[i:], []byte("//")):
			return offset + i, ErrLineComment
		case bytes.HasPrefix(b[i:], []byte("/*")):
			end := bytes.Index(b[i+2:], []byte("*/"))
			if end < 0 {
				return offset + i, ErrUnterminatedComment
			}
			i += 2 + end + 2
		default:
			i++
		}
	}
	return 0, nil
}

// Position converts a byte offset into src to a 1-based line and column.
// Offsets past the end are clamped to the end of the input.
func Position(src []byte, offset int64) (line, col int) {
	if offset < 0 {
		offset = 0
	}
	if offset > int64(len(src)) {
		offset = int64(len(src))
	}

	line, col = 1, 1
	for _, c := range src[:offset] {
		if c == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
