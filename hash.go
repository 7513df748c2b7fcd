package omnivolume

import (
	"crypto/md5"  //nolint:gosec // content checksum only
	"crypto/sha1" //nolint:gosec // content checksum only
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"hash/crc32"
	"io"
)

// HashType names a checksum algorithm for extracted data.
type HashType string

// Checksum algorithms. HashNone disables checksumming where an option
// accepts a HashType.
const (
	HashNone   HashType = ""
	HashMD5    HashType = "md5"
	HashSHA1   HashType = "sha1"
	HashSHA256 HashType = "sha256"
	HashCRC32C HashType = "crc32c"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// hashes is ordered as SupportedHashes reports it.
var hashes = []struct {
	t   HashType
	new func() hash.Hash
}{
	{HashMD5, md5.New},
	{HashSHA1, sha1.New},
	{HashSHA256, sha256.New},
	{HashCRC32C, func() hash.Hash { return crc32.New(castagnoli) }},
}

func (h HashType) String() string {
	return string(h)
}

// SupportedHashes lists every HashType NewHash accepts.
func SupportedHashes() []HashType {
	types := make([]HashType, len(hashes))
	for i, h := range hashes {
		types[i] = h.t
	}
	return types
}

// NewHash returns a fresh hash.Hash for t, or nil when t is HashNone or
// unknown.
func NewHash(t HashType) hash.Hash {
	for _, h := range hashes {
		if h.t == t {
			return h.new()
		}
	}
	return nil
}

func newHash(t HashType) (hash.Hash, error) {
	h := NewHash(t)
	if h == nil {
		return nil, NotSupportedError("hash type " + t.String())
	}
	return h, nil
}

func sum(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}

// HashReader drains r and returns its hex checksum.
func HashReader(r io.Reader, t HashType) (string, error) {
	h, err := newHash(t)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return sum(h), nil
}

// HashHandle hashes the whole source behind an open handle.
// The handle offset is restored afterwards, also on failure.
func HashHandle(h *Handle, t HashType) (digest string, err error) {
	offset, err := h.Offset()
	if err != nil {
		return "", err
	}
	if _, err := h.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	defer func() {
		if _, seekErr := h.Seek(offset, io.SeekStart); seekErr != nil && err == nil {
			err = seekErr
		}
	}()

	return HashReader(h, t)
}
