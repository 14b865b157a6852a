// Package jsonutil decodes job documents that arrive as queue message bodies
// or hand-written files.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrEmpty is returned when the document has no content.
var ErrEmpty = errors.New("empty JSON document")

// Decode unmarshals exactly one JSON value from raw into T. A leading UTF-8
// byte order mark and surrounding whitespace are ignored; anything after the
// first value is an error.
func Decode[T any](raw []byte) (T, error) {
	var zero T

	text := bytes.TrimSpace(bytes.TrimPrefix(raw, utf8BOM))
	if len(text) == 0 {
		return zero, ErrEmpty
	}

	dec := json.NewDecoder(bytes.NewReader(text))
	var result T
	if err := dec.Decode(&result); err != nil {
		return zero, fmt.Errorf("invalid JSON: %w (text: %s)", err, preview(text))
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return zero, fmt.Errorf("invalid JSON: unexpected content after value at offset %d", dec.InputOffset())
	}
	return result, nil
}

// preview truncates text for inclusion in error messages.
func preview(text []byte) string {
	if len(text) > 200 {
		return string(text[:200]) + "..."
	}
	return string(text)
}
