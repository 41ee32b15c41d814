package checksum

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SumBase64 returns the base64-encoded SHA-256 digest of data, the form S3
// expects in x-amz-checksum-sha256.
func SumBase64(data []byte) string {
	h := sha256.Sum256(data)
	return base64.StdEncoding.EncodeToString(h[:])
}
