// Package media turns the different shapes an upload can arrive in (a path on
// disk, a byte buffer, an open stream, an already decoded image) into one
// canonical representation before any model call happens.
//
// Audio is normalized to mono 16-bit PCM WAV at a fixed sample rate and
// materialized in a temporary file owned by the returned *Audio. Images are
// decoded into an NRGBA bitmap and kept alongside bytes the vision model
// accepts.
package media

import (
	"io"
	"strings"
)

// Input is the closed set of raw input kinds: Path, Bytes, Stream and *Image.
type Input interface {
	isInput()
}

// Path is a filesystem path. For images it may also be an inline
// "data:image/...;base64,..." URI.
type Path string

type Bytes []byte

// Stream is read to the end before decoding.
type Stream struct {
	Reader io.Reader
	// Name is an optional file name used as a format hint.
	Name string
}

func NewStream(r io.Reader, name string) Stream {
	return Stream{Reader: r, Name: name}
}

func (Path) isInput()   {}
func (Bytes) isInput()  {}
func (Stream) isInput() {}
func (*Image) isInput() {}

const dataImagePrefix = "data:image"

func (p Path) isDataURI() bool {
	return strings.HasPrefix(string(p), dataImagePrefix)
}

func kindOf(in Input) string {
	switch in.(type) {
	case Path:
		return "path"
	case Bytes:
		return "bytes"
	case Stream:
		return "stream"
	case *Image:
		return "image"
	default:
		return "unknown"
	}
}
