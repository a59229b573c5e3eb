package media

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedInputKind = errors.New("unsupported input kind")
	ErrInputDecode          = errors.New("input decode error")
)

// DecodeError wraps any failure met while turning raw input into canonical
// media. errors.Is(err, ErrInputDecode) holds for every DecodeError.
type DecodeError struct {
	Media string
	Kind  string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("error processing %s input (%s): %v", e.Media, e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrInputDecode
}

func decodeError(media string, in Input, err error) error {
	return &DecodeError{Media: media, Kind: kindOf(in), Err: err}
}

func unsupported(media string, in Input) error {
	return fmt.Errorf("%s: %w (%T)", media, ErrUnsupportedInputKind, in)
}
