package entity

import (
	"encoding/base64"
	"strconv"
	"strings"
)

// Cursor is a position in a collection's index: the number of ids already
// returned and the last of them.
type Cursor struct {
	Offset int
	After  string
}

// Encode returns the opaque token form of c.
func (c Cursor) Encode() string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(c.Offset) + "." + c.After))
}

// DecodeCursor parses a token produced by Encode. Empty or garbled tokens
// decode to the zero Cursor, which starts from the beginning.
func DecodeCursor(token string) Cursor {
	if token == "" {
		return Cursor{}
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}
	}
	offset, after, ok := strings.Cut(string(raw), ".")
	if !ok {
		return Cursor{}
	}
	n, err := strconv.Atoi(offset)
	if err != nil || n < 0 {
		return Cursor{}
	}
	return Cursor{Offset: n, After: after}
}

// position resolves c against ids. The id recorded in the cursor wins when it
// is still indexed; otherwise the offset is used if it is in range.
func (c Cursor) position(ids []string) int {
	if c.After != "" {
		for i, id := range ids {
			if id == c.After {
				return i + 1
			}
		}
	}
	if c.Offset >= 0 && c.Offset <= len(ids) {
		return c.Offset
	}
	return 0
}
