// Package identity validates the account addresses used at the API edge.
package identity

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/powerchain/backend/internal/models"
	"golang.org/x/crypto/sha3"
)

// ZeroAddress is the burn identity; ledgers refuse it as a transfer target.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// Normalize validates a hex account address and returns its EIP-55 form.
// All-lowercase and all-uppercase input is accepted without a checksum;
// mixed case must carry a valid checksum.
func Normalize(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if len(addr) != 42 || !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return "", fmt.Errorf("%w: %q", models.ErrInvalidAddress, addr)
	}
	body := addr[2:]
	if _, err := hex.DecodeString(body); err != nil {
		return "", fmt.Errorf("%w: %q", models.ErrInvalidAddress, addr)
	}

	checksummed := Checksum(body)
	lower, upper := strings.ToLower(body), strings.ToUpper(body)
	if body != lower && body != upper && "0x"+body != checksummed {
		return "", fmt.Errorf("%w: bad checksum for %q", models.ErrInvalidAddress, addr)
	}
	return checksummed, nil
}

// Checksum applies EIP-55 mixed-case encoding to a 40 character hex body.
func Checksum(body string) string {
	lower := strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(body, "0x"), "0X"))

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	hash := h.Sum(nil)

	out := []byte(lower)
	for i := range out {
		if out[i] < 'a' {
			continue
		}
		nibble := hash[i/2]
		if i%2 == 0 {
			nibble >>= 4
		}
		if nibble&0x0f >= 8 {
			out[i] -= 'a' - 'A'
		}
	}
	return "0x" + string(out)
}

// IsZero reports whether addr is empty or the zero address.
func IsZero(addr string) bool {
	return addr == "" || strings.EqualFold(addr, ZeroAddress)
}
