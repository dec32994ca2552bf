// Package contenthash names content by its digest. Audio captures, transient
// upload files and synthesis cache entries all share this scheme.
package contenthash

import (
	"crypto/md5"
	"encoding/hex"
)

// Sum returns the lowercase hex MD5 of b. MD5 is used as a name, not for
// integrity; it matches the on-disk cache layout <md5(text)>.mp3.
func Sum(b []byte) string {
	h := md5.Sum(b)
	return hex.EncodeToString(h[:])
}

// SumString is Sum over the UTF-8 bytes of s.
func SumString(s string) string {
	return Sum([]byte(s))
}
