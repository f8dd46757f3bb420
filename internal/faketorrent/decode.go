package faketorrent

import (
	"bytes"
	"errors"
	"strconv"
)

// ErrNoLink marks a container carrying neither a comment nor a url-list
// field. The watcher routes such files to failed/ with a no-link reason.
var ErrNoLink = errors.New("no download link in container")

// Payload is what a decoded container yields
type Payload struct {
	URL    string
	Name   string
	Length int64
}

// Decode extracts the carried URL, display name and size hint from raw
// container bytes. It deliberately does not parse the full bencode
// structure: a byte scan for the known field markers also accepts
// containers produced by other encoders, as long as a comment or
// url-list field exists. The scan runs over raw bytes so multi-byte
// UTF-8 names never shift the declared length offsets.
func Decode(data []byte) (*Payload, error) {
	url, ok := findString(data, "7:comment")
	if !ok {
		url, ok = findString(data, "8:url-list")
	}
	if !ok || url == "" {
		return nil, ErrNoLink
	}

	payload := &Payload{URL: url}

	// Name and length live in the info dictionary. Scanning from the
	// info marker keeps a top-level field from shadowing them.
	rest := data
	if i := bytes.Index(data, []byte("4:info")); i >= 0 {
		rest = data[i:]
	}
	if name, ok := findString(rest, "4:name"); ok {
		payload.Name = name
	}
	if length, ok := findInt(rest, "6:length"); ok {
		payload.Length = length
	}

	return payload, nil
}

// findString locates marker and reads the length-prefixed string value
// following it. Occurrences where no valid length prefix follows (the
// marker bytes appearing inside some other value) are skipped.
func findString(data []byte, marker string) (string, bool) {
	m := []byte(marker)
	offset := 0
	for {
		i := bytes.Index(data[offset:], m)
		if i < 0 {
			return "", false
		}
		pos := offset + i + len(m)
		if value, ok := readString(data, pos); ok {
			return value, true
		}
		// url-list may be a list of strings rather than a single
		// string; take the first element.
		if pos < len(data) && data[pos] == 'l' {
			if value, ok := readString(data, pos+1); ok {
				return value, true
			}
		}
		offset = offset + i + 1
	}
}

// readString parses `<byte-length>:<raw-bytes>` at pos
func readString(data []byte, pos int) (string, bool) {
	end := pos
	for end < len(data) && data[end] >= '0' && data[end] <= '9' {
		end++
	}
	if end == pos || end >= len(data) || data[end] != ':' {
		return "", false
	}
	length, err := strconv.Atoi(string(data[pos:end]))
	if err != nil || length < 0 {
		return "", false
	}
	start := end + 1
	if length > len(data)-start {
		return "", false
	}
	return string(data[start : start+length]), true
}

// findInt locates marker followed by a bencode integer `i<digits>e`
func findInt(data []byte, marker string) (int64, bool) {
	m := []byte(marker)
	offset := 0
	for {
		i := bytes.Index(data[offset:], m)
		if i < 0 {
			return 0, false
		}
		pos := offset + i + len(m)
		if pos < len(data) && data[pos] == 'i' {
			end := pos + 1
			for end < len(data) && data[end] != 'e' {
				end++
			}
			if end < len(data) {
				if n, err := strconv.ParseInt(string(data[pos+1:end]), 10, 64); err == nil {
					return n, true
				}
			}
		}
		offset = offset + i + 1
	}
}
