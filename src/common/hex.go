package common

import (
	"encoding/hex"
	"fmt"
	"strings"
)

//EncodeToString returns the UPPERCASE string representation of hexBytes with
//the 0X prefix
func EncodeToString(hexBytes []byte) string {
	return fmt.Sprintf("0X%X", hexBytes)
}

//DecodeFromString converts a hex string with 0X prefix to a byte slice
func DecodeFromString(hexString string) ([]byte, error) {
	if !strings.HasPrefix(strings.ToUpper(hexString), "0X") {
		return nil, fmt.Errorf("hex string %q is missing the 0X prefix", hexString)
	}
	return hex.DecodeString(hexString[2:])
}

// ShortHex returns the first bytes of the hex form of a hash. It is only used
// to keep log lines readable.
func ShortHex(hash []byte) string {
	s := EncodeToString(hash)
	if len(s) > 12 {
		return s[:12]
	}
	return s
}
