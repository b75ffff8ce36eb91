// Package metadata encodes the location a stored vector points back to.
//
// A location is serialized as "<path>|<offset>" in a single-byte character
// encoding so that every stored byte maps to exactly one character.
package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// Separator splits the path from the offset.
const Separator = '|'

// ErrInvalidLocation is returned by Encode for locations that cannot round-trip.
var ErrInvalidLocation = errors.New("invalid location")

// Location identifies a character offset inside a document.
type Location struct {
	Path   string
	Offset int
}

func (l Location) String() string {
	return fmt.Sprintf("%s@%d", l.Path, l.Offset)
}

// MalformedMetadataError reports stored metadata that cannot be decoded.
// It indicates a corrupt or foreign index.
type MalformedMetadataError struct {
	Raw    string
	Reason string
}

func (e *MalformedMetadataError) Error() string {
	return fmt.Sprintf("malformed metadata %q: %s", e.Raw, e.Reason)
}

var charset = charmap.ISO8859_1

// Encode serializes path and offset. Runes outside the single-byte
// repertoire are replaced with '?'.
func Encode(path string, offset int) ([]byte, error) {
	if strings.ContainsRune(path, Separator) {
		return nil, fmt.Errorf("%w: path %q contains %q", ErrInvalidLocation, path, Separator)
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: negative offset %d", ErrInvalidLocation, offset)
	}
	s := path + string(Separator) + strconv.Itoa(offset)
	out := make([]byte, 0, len(s))
	for _, r := range s {
		b, ok := charset.EncodeRune(r)
		if !ok {
			b = '?'
		}
		out = append(out, b)
	}
	return out, nil
}

// Decode parses metadata produced by Encode.
func Decode(raw []byte) (Location, error) {
	i := bytes.IndexByte(raw, Separator)
	if i < 0 {
		return Location{}, &MalformedMetadataError{Raw: string(raw), Reason: "missing separator"}
	}
	offsetPart := string(raw[i+1:])
	offset, err := strconv.Atoi(offsetPart)
	if err != nil || offset < 0 || strings.HasPrefix(offsetPart, "+") {
		return Location{}, &MalformedMetadataError{Raw: string(raw), Reason: "offset is not a non-negative integer"}
	}
	path, err := charset.NewDecoder().Bytes(raw[:i])
	if err != nil {
		return Location{}, &MalformedMetadataError{Raw: string(raw), Reason: err.Error()}
	}
	return Location{Path: string(path), Offset: offset}, nil
}

