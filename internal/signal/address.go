package signal

import (
	"github.com/mr-tron/base58"
)

// MinAddressLength is the shortest accepted token address
const MinAddressLength = 32

// ValidAddress checks length and character set of a token address
func ValidAddress(addr string) bool {
	if len(addr) < MinAddressLength {
		return false
	}
	for _, r := range addr {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}

// IsSolanaKey reports whether addr decodes to a 32-byte base58 public key
func IsSolanaKey(addr string) bool {
	b, err := base58.Decode(addr)
	return err == nil && len(b) == 32
}
