package nfce

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// MaxKeyListSize is the largest key list accepted by ParseKeyList
const MaxKeyListSize = 10 << 20

// KeyList is the result of parsing an uploaded list of access keys
type KeyList struct {
	Keys []DocumentKey `json:"keys"`

	// Invalid holds the non-empty entries that were not valid keys, in input order
	Invalid []string `json:"invalid,omitempty"`

	// HeaderSkipped is set when the first line was treated as a column header
	HeaderSkipped bool `json:"headerSkipped"`
}

// ParseKeyList reads a newline separated list of access keys.
//
// Only the first comma (or semicolon) separated column is used and surrounding double quotes are removed.
// The first non-empty line is treated as a header when it is not a valid key.
// Input that is not valid UTF-8 is decoded as ISO-8859-1 (spreadsheet exports on Windows).
//
// Invalid entries are reported in KeyList.Invalid and never returned as keys.
func ParseKeyList(r io.Reader) (*KeyList, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxKeyListSize+1))
	if err != nil {
		return nil, WrapValidationError(err, "failed to read key list")
	}
	if len(data) > MaxKeyListSize {
		return nil, NewValidationError(fmt.Sprintf("key list exceeds maximum size of %d bytes", MaxKeyListSize))
	}

	if !utf8.Valid(data) {
		data, err = charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return nil, WrapValidationError(err, "failed to decode key list")
		}
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	list := &KeyList{Keys: []DocumentKey{}}
	first := true
	for line := range strings.Lines(string(data)) {
		entry := firstColumn(line)
		if entry == "" {
			continue
		}

		key, err := ParseDocumentKey(entry)
		if err != nil {
			if first {
				list.HeaderSkipped = true
				first = false
				continue
			}
			list.Invalid = append(list.Invalid, entry)
			continue
		}
		first = false
		list.Keys = append(list.Keys, key)
	}

	return list, nil
}

func firstColumn(line string) string {
	if i := strings.IndexAny(line, ",;"); i >= 0 {
		line = line[:i]
	}
	line = strings.ReplaceAll(line, `"`, "")
	return strings.TrimSpace(line)
}
