package security

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
)

// jwksKeyToRSA decodes a JWKS RSA key's base64url-encoded modulus (n) and
// exponent (e) into an *rsa.PublicKey.
func jwksKeyToRSA(n, e string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}

	modulus := new(big.Int).SetBytes(nBytes)
	exponent := new(big.Int).SetBytes(eBytes)
	if !exponent.IsInt64() {
		return nil, fmt.Errorf("exponent out of range")
	}

	return &rsa.PublicKey{N: modulus, E: int(exponent.Int64())}, nil
}
