package oem

import (
	"fmt"
	"io"
	"strings"
)

// Format identifies a CCSDS navigation message type by its version keyword.
type Format int

const (
	FormatUnknown Format = iota
	FormatOEM            // Orbit Ephemeris Message
	FormatAEM            // Attitude Ephemeris Message
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatOEM:
		return "OEM"
	case FormatAEM:
		return "AEM"
	default:
		return "unknown"
	}
}

// DetectFormat inspects the first non-blank line of a message.
func DetectFormat(firstLine string) Format {
	key, _, _ := strings.Cut(firstLine, "=")
	switch strings.ToUpper(strings.TrimSpace(key)) {
	case "CCSDS_OEM_VERS":
		return FormatOEM
	case "CCSDS_AEM_VERS":
		return FormatAEM
	default:
		return FormatUnknown
	}
}

// Decoder produces a Message from a text stream.
type Decoder interface {
	Decode(r io.Reader, source string) (*Message, error)
}

// OEMDecoder decodes Orbit Ephemeris Messages.
type OEMDecoder struct {
	Options []Option
}

// Decode implements Decoder.
func (d OEMDecoder) Decode(r io.Reader, source string) (*Message, error) {
	return Parse(r, source, d.Options...)
}

// DecoderFor returns the decoder for f. Only OEM is implemented.
func DecoderFor(f Format, opts ...Option) (Decoder, error) {
	switch f {
	case FormatOEM:
		return OEMDecoder{Options: opts}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
}
