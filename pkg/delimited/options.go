// Package delimited reads and writes delimited text files against an
// explicit table schema. It handles comma-separated files with a header row,
// headerless files with any single or multi-character delimiter such as the
// legacy "::" format, and latin-1 encoded sources.
package delimited

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// Define static errors
var (
	ErrEmptyDelimiter  = errors.New("delimiter must not be empty")
	ErrUnknownEncoding = errors.New("unknown source encoding")
	ErrUnknownPolicy   = errors.New("unknown malformed row policy")
	ErrMalformedRow    = errors.New("malformed row")
	ErrMissingColumn   = errors.New("required column missing from header")
	ErrNoSourceFiles   = errors.New("no source files found")
)

// Comma is the only delimiter for which a header row is expected
const Comma = ","

// Policy decides what happens to a malformed row
type Policy string

// Malformed row policies
const (
	// PolicyFail aborts the read on the first malformed row
	PolicyFail Policy = "fail"
	// PolicySkip drops malformed rows and counts them
	PolicySkip Policy = "skip"
)

// Source encodings
const (
	EncodingUTF8   = "utf-8"
	EncodingLatin1 = "latin1"
)

// Options configures a Reader
type Options struct {
	Delimiter string `yaml:"delimiter" default:","`
	Encoding  string `yaml:"encoding" default:"utf-8"`
	Malformed Policy `yaml:"malformed" default:"fail"`
}

// Validate checks if the options are valid
func (o *Options) Validate() error {
	if o.Delimiter == "" {
		return ErrEmptyDelimiter
	}

	if _, err := normalizeEncoding(o.Encoding); err != nil {
		return err
	}

	switch o.Malformed {
	case PolicyFail, PolicySkip, "":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPolicy, o.Malformed)
	}

	return nil
}

// HasHeader reports whether sources are expected to start with a header row
func (o *Options) HasHeader() bool {
	return o.Delimiter == Comma
}

func (o *Options) policy() Policy {
	if o.Malformed == "" {
		return PolicyFail
	}

	return o.Malformed
}

func normalizeEncoding(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf8", EncodingUTF8:
		return EncodingUTF8, nil
	case EncodingLatin1, "latin-1", "iso-8859-1", "iso8859-1":
		return EncodingLatin1, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
}

// decode wraps src so that it yields UTF-8
func (o *Options) decode(src io.Reader) io.Reader {
	if enc, _ := normalizeEncoding(o.Encoding); enc == EncodingLatin1 {
		return charmap.ISO8859_1.NewDecoder().Reader(src)
	}

	return src
}

// RowError locates a malformed row
type RowError struct {
	File   string
	Line   int
	Reason string
}

// Error implements error
func (e *RowError) Error() string {
	return fmt.Sprintf("%s: %s:%d: %s", ErrMalformedRow, e.File, e.Line, e.Reason)
}

// Unwrap returns ErrMalformedRow
func (e *RowError) Unwrap() error {
	return ErrMalformedRow
}
