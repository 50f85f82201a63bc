package solana

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// tokenAccountLen is the size of an SPL token account without extensions.
const tokenAccountLen = 165

var (
	// ErrInvalidAddress is returned for strings that are not 32-byte base58 keys.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrNoViableBump is returned when every bump seed yields an on-curve point.
	ErrNoViableBump = errors.New("no viable bump seed")
)

// DecodeAddress decodes a base58 public key.
func DecodeAddress(addr string) ([]byte, error) {
	b, err := base58.Decode(addr)
	if err != nil || len(b) != 32 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	return b, nil
}

// IsOnCurve reports whether a base58 key is a valid ed25519 point.
// Wallets are on-curve; program derived addresses are not.
func IsOnCurve(addr string) bool {
	b, err := DecodeAddress(addr)
	if err != nil {
		return false
	}
	return isOnCurve(b)
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

// FindProgramAddress derives the canonical program address for seeds.
func FindProgramAddress(seeds [][]byte, programID string) (string, uint8, error) {
	program, err := DecodeAddress(programID)
	if err != nil {
		return "", 0, err
	}

	for bump := 255; bump > 0; bump-- {
		h := sha256.New()
		for _, seed := range seeds {
			h.Write(seed)
		}
		h.Write([]byte{byte(bump)})
		h.Write(program)
		h.Write([]byte("ProgramDerivedAddress"))
		sum := h.Sum(nil)

		if !isOnCurve(sum) {
			return base58.Encode(sum), uint8(bump), nil
		}
	}
	return "", 0, ErrNoViableBump
}

// AssociatedTokenAddress returns the associated token account of wallet for mint.
func AssociatedTokenAddress(wallet, mint string) (string, error) {
	w, err := DecodeAddress(wallet)
	if err != nil {
		return "", err
	}
	m, err := DecodeAddress(mint)
	if err != nil {
		return "", err
	}
	tokenProgram, _ := DecodeAddress(TokenProgramID)

	addr, _, err := FindProgramAddress([][]byte{w, tokenProgram, m}, AssociatedTokenProgramID)
	return addr, err
}

// DecodeTokenAccount decodes the raw SPL token account layout:
// mint[0:32] owner[32:64] amount[64:72] (little endian).
func DecodeTokenAccount(data []byte) (*TokenAccount, error) {
	if len(data) < tokenAccountLen {
		return nil, fmt.Errorf("token account data too short: %d bytes", len(data))
	}
	return &TokenAccount{
		Mint:   base58.Encode(data[0:32]),
		Owner:  base58.Encode(data[32:64]),
		Amount: strconv.FormatUint(binary.LittleEndian.Uint64(data[64:72]), 10),
	}, nil
}
