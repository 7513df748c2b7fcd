package omnivolume

import "io"

// Copy streams src, from its current offset to its end, into dst at dst's
// current offset. It returns the number of bytes copied.
//
// Use it to extract data between handles, for example a file entry's data
// stream into a file handle opened for writing.
func Copy(dst, src *Handle) (int64, error) {
	return io.Copy(dst, src)
}

// CopyWithHash copies like Copy and also returns the hex checksum of the
// bytes that went through. Nothing is copied for an unsupported hashType.
func CopyWithHash(dst, src *Handle, hashType HashType) (int64, string, error) {
	h, err := newHash(hashType)
	if err != nil {
		return 0, "", err
	}
	n, err := io.Copy(io.MultiWriter(dst, h), src)
	if err != nil {
		return n, "", err
	}
	return n, sum(h), nil
}
