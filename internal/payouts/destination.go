package payouts

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/crypto/sha3"

	"github.com/creatorhub/backend/internal/models"
)

const (
	ibanMinLen = 15
	ibanMaxLen = 34
)

var (
	ibanPattern    = regexp.MustCompile(`^[A-Z]{2}[0-9]{2}[A-Z0-9]+$`)
	evmAddrPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// NormalizeIBAN strips all whitespace and upper-cases.
func NormalizeIBAN(s string) string {
	return strings.ToUpper(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s))
}

// NormalizeDestination validates the destination shape and returns it in
// canonical form. Errors wrap ErrInvalidDestination.
func NormalizeDestination(d models.Destination) (models.Destination, error) {
	switch d.Type {
	case models.DestinationIBAN:
		iban := NormalizeIBAN(d.IBAN)
		if len(iban) < ibanMinLen || len(iban) > ibanMaxLen || !ibanPattern.MatchString(iban) {
			return models.Destination{}, fmt.Errorf("%w: IBAN is not valid", ErrInvalidDestination)
		}
		return models.Destination{Type: models.DestinationIBAN, IBAN: iban}, nil
	case models.DestinationCrypto:
		addr := strings.TrimSpace(d.CryptoAddress)
		if addr == "" {
			return models.Destination{}, fmt.Errorf("%w: wallet address is required", ErrInvalidDestination)
		}
		network := models.CryptoNetwork(strings.ToUpper(strings.TrimSpace(string(d.CryptoNetwork))))
		if network != models.NetworkETH && network != models.NetworkUSDT {
			return models.Destination{}, fmt.Errorf("%w: network must be ETH or USDT", ErrInvalidDestination)
		}
		if evmAddrPattern.MatchString(addr) {
			addr = ChecksumAddress(addr)
		}
		return models.Destination{Type: models.DestinationCrypto, CryptoAddress: addr, CryptoNetwork: network}, nil
	}
	return models.Destination{}, fmt.Errorf("%w: unknown destination type %q", ErrInvalidDestination, d.Type)
}

// ValidateDestination reports whether d passes the destination shape checks.
func ValidateDestination(d models.Destination) error {
	_, err := NormalizeDestination(d)
	return err
}

// ChecksumAddress returns the EIP-55 mixed-case form of a 0x-prefixed
// 20-byte hex address.
func ChecksumAddress(addr string) string {
	hexPart := []byte(strings.ToLower(addr[2:]))
	h := sha3.NewLegacyKeccak256()
	h.Write(hexPart)
	sum := h.Sum(nil)
	for i, c := range hexPart {
		if c < 'a' {
			continue
		}
		nibble := sum[i/2]
		if i%2 == 0 {
			nibble >>= 4
		}
		if nibble&0x0f >= 8 {
			hexPart[i] = c - ('a' - 'A')
		}
	}
	return "0x" + string(hexPart)
}
