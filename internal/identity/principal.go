package identity

import (
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"strings"
)

// Principal is the canonical textual user/account identifier used to key
// cross-sink joins. The textual form is dash-grouped lowercase base32 of a
// big-endian CRC32 checksum followed by the raw identifier bytes.
type Principal struct {
	raw []byte
}

// MaxRawLength bounds the identifier body; self-authenticating user ids are
// 29 bytes, opaque system ids are shorter.
const MaxRawLength = 29

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

type ParseError struct {
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid principal %q: %s", e.Text, e.Reason)
}

// Parse validates and canonicalizes the textual form. The input is accepted
// case-insensitively but must carry a correct checksum and canonical dash
// grouping.
func Parse(text string) (Principal, error) {
	lowered := strings.ToLower(text)
	compact := strings.ReplaceAll(lowered, "-", "")

	decoded, err := encoding.DecodeString(strings.ToUpper(compact))
	if err != nil {
		return Principal{}, &ParseError{Text: text, Reason: "not valid base32"}
	}

	if len(decoded) < crc32.Size {
		return Principal{}, &ParseError{Text: text, Reason: "too short to carry a checksum"}
	}

	checksum := binary.BigEndian.Uint32(decoded[:crc32.Size])
	raw := decoded[crc32.Size:]

	if len(raw) > MaxRawLength {
		return Principal{}, &ParseError{Text: text, Reason: fmt.Sprintf("body exceeds %d bytes", MaxRawLength)}
	}

	if checksum != crc32.ChecksumIEEE(raw) {
		return Principal{}, &ParseError{Text: text, Reason: "checksum mismatch"}
	}

	p := Principal{raw: raw}
	if lowered != p.String() {
		return Principal{}, &ParseError{Text: text, Reason: "non-canonical grouping"}
	}

	return p, nil
}

// FromBytes builds a principal from its raw identifier bytes.
func FromBytes(raw []byte) (Principal, error) {
	if len(raw) > MaxRawLength {
		return Principal{}, &ParseError{Reason: fmt.Sprintf("body exceeds %d bytes", MaxRawLength)}
	}
	return Principal{raw: append([]byte(nil), raw...)}, nil
}

// String renders the canonical textual form: checksum-prefixed base32,
// lowercase, dash-separated in groups of five.
func (p Principal) String() string {
	data := make([]byte, crc32.Size+len(p.raw))
	binary.BigEndian.PutUint32(data, crc32.ChecksumIEEE(p.raw))
	copy(data[crc32.Size:], p.raw)

	encoded := strings.ToLower(encoding.EncodeToString(data))

	var b strings.Builder
	b.Grow(len(encoded) + len(encoded)/5)
	for i, r := range encoded {
		if i > 0 && i%5 == 0 {
			b.WriteByte('-')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (p Principal) Bytes() []byte {
	return append([]byte(nil), p.raw...)
}
