package common

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// EncodeToString returns the uppercase hex representation of data with the 0X
// prefix. This is the format used for public keys and event hashes.
func EncodeToString(data []byte) string {
	return fmt.Sprintf("0X%X", data)
}

// DecodeFromString converts a hex string, with or without the 0X prefix, back
// to bytes.
func DecodeFromString(s string) ([]byte, error) {
	if len(s) >= 2 && strings.EqualFold(s[:2], "0x") {
		s = s[2:]
	}
	return hex.DecodeString(s)
}
