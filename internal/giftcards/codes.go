package giftcards

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// codeAlphabet skips 0/O/1/I to keep codes readable over the phone.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	codeGroups    = 3
	codeGroupSize = 4
	pinDigits     = 6
)

// generateCode returns a card code like GC-7FKQ-2MNP-X4ZR.
func generateCode() (string, error) {
	groups := make([]string, 0, codeGroups+1)
	groups = append(groups, "GC")
	for g := 0; g < codeGroups; g++ {
		var sb strings.Builder
		for i := 0; i < codeGroupSize; i++ {
			idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
			if err != nil {
				return "", fmt.Errorf("generate gift card code: %w", err)
			}
			sb.WriteByte(codeAlphabet[idx.Int64()])
		}
		groups = append(groups, sb.String())
	}
	return strings.Join(groups, "-"), nil
}

// generatePIN returns a zero-padded numeric PIN.
func generatePIN() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < pinDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate gift card pin: %w", err)
	}
	return fmt.Sprintf("%0*d", pinDigits, n), nil
}

// normalizeCode makes user-entered codes match the stored form.
func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
