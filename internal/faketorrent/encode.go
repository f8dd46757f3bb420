// Package faketorrent encodes a plain HTTP download URL inside a minimal
// torrent metainfo file. The container is a carrier, not a real torrent:
// the URL rides in the comment field (duplicated in url-list for consumers
// that read either), and the info dictionary holds just enough structure
// to satisfy a generic metainfo parser.
package faketorrent

import (
	"bytes"
	"crypto/sha1"
	"strconv"
	"time"
)

const (
	// Extension used by placeholder files in the watch directory
	Extension = ".torrent"

	announceURL = "http://tracker.invalid/announce"
	createdBy   = "ddlarr"

	// Length written when the caller has no real size. Also used as the
	// piece length, which always mirrors the length so the file declares
	// exactly one piece.
	FakeLength = 16384
)

// Encode builds the container for a (name, url) pair. A positive size is
// carried through as the info length hint; otherwise the fixed fake
// length is written. Bencode requires lexicographic key order inside each
// dictionary, which the write order below follows.
func Encode(name, url string, size int64) []byte {
	length := size
	if length <= 0 {
		length = FakeLength
	}

	// One stable digest derived from the payload stands in for real
	// piece hashes. It only has to be reproducible, not meaningful.
	digest := sha1.Sum([]byte(name + url))

	var b bytes.Buffer
	b.WriteByte('d')
	writeString(&b, "announce")
	writeString(&b, announceURL)
	writeString(&b, "comment")
	writeString(&b, url)
	writeString(&b, "created by")
	writeString(&b, createdBy)
	writeString(&b, "creation date")
	writeInt(&b, time.Now().Unix())
	writeString(&b, "info")
	b.WriteByte('d')
	writeString(&b, "length")
	writeInt(&b, length)
	writeString(&b, "name")
	writeString(&b, name)
	writeString(&b, "piece length")
	writeInt(&b, length)
	writeString(&b, "pieces")
	writeBytes(&b, digest[:])
	b.WriteByte('e')
	writeString(&b, "url-list")
	writeString(&b, url)
	b.WriteByte('e')
	return b.Bytes()
}

// writeString writes a byte-length-prefixed bencode string
func writeString(b *bytes.Buffer, s string) {
	b.WriteString(strconv.Itoa(len(s)))
	b.WriteByte(':')
	b.WriteString(s)
}

func writeBytes(b *bytes.Buffer, p []byte) {
	b.WriteString(strconv.Itoa(len(p)))
	b.WriteByte(':')
	b.Write(p)
}

func writeInt(b *bytes.Buffer, n int64) {
	b.WriteByte('i')
	b.WriteString(strconv.FormatInt(n, 10))
	b.WriteByte('e')
}
