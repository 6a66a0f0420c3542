package util

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// ParseBigInt parses a decimal string in atomic token units. Fee and budget
// amounts are carried as strings end to end; arithmetic happens here.
func ParseBigInt(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer string: %q", s)
	}
	return v, nil
}

// Add returns a+b for two decimal strings.
func Add(a, b string) (*big.Int, error) {
	x, err := ParseBigInt(a)
	if err != nil {
		return nil, err
	}
	y, err := ParseBigInt(b)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Add(x, y), nil
}

// Compare returns -1, 0 or 1 for two decimal strings.
func Compare(a, b string) (int, error) {
	x, err := ParseBigInt(a)
	if err != nil {
		return 0, err
	}
	y, err := ParseBigInt(b)
	if err != nil {
		return 0, err
	}
	return x.Cmp(y), nil
}

// SumStrings adds a list of decimal strings, skipping empty values.
func SumStrings(values []string) (*big.Int, error) {
	total := new(big.Int)
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		x, err := ParseBigInt(v)
		if err != nil {
			return nil, err
		}
		total.Add(total, x)
	}
	return total, nil
}

// RandomHex returns n random bytes hex-encoded with a 0x prefix.
func RandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %v", err)
	}
	return "0x" + hex.EncodeToString(buf), nil
}

// PtrOf returns a pointer to v.
func PtrOf[T any](v T) *T { return &v }
