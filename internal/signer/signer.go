// Package signer authenticates requests to a remote recognizer. Each request
// body is signed with a secp256k1 key so the recognizer can check who sent it
// and reject replays outside its timestamp window.
package signer

import (
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

// Signer produces recoverable ECDSA signatures over secp256k1.
type Signer struct {
	key     *ecdsa.PrivateKey
	address string
}

// New creates a Signer from a hex-encoded private key (0x prefix optional).
func New(hexKey string) (*Signer, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("signer: invalid hex key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("signer: key must be 32 bytes, got %d", len(raw))
	}
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("signer: %w", err)
	}
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey).Hex(),
	}, nil
}

// Address is the checksummed address derived from the public key. It is sent
// as X-Requester-Address so the recognizer knows which key to expect.
func (s *Signer) Address() string {
	return s.address
}

// Sign returns the base64 signature over payload and the timestamp (ns) that
// was bound into it.
//
// Signing scheme:
//  1. digest = keccak256(keccak256(payload) || decimal(timestamp_ns))
//  2. sig = secp256k1 sign(digest) as r || s || v (65 bytes)
//  3. base64(sig)
func (s *Signer) Sign(payload []byte) (sig string, tsNano int64, err error) {
	ts := time.Now().UnixNano()
	raw, err := crypto.Sign(digest(payload, ts), s.key)
	if err != nil {
		return "", 0, fmt.Errorf("signer: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), ts, nil
}

// Recover returns the address that produced sig over payload at ts.
// The recognizer side compares it against X-Requester-Address.
func Recover(payload []byte, ts int64, sig string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return "", fmt.Errorf("signer: decode signature: %w", err)
	}
	pub, err := crypto.SigToPub(digest(payload, ts), raw)
	if err != nil {
		return "", fmt.Errorf("signer: recover: %w", err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

func digest(payload []byte, ts int64) []byte {
	inner := sha3.NewLegacyKeccak256()
	inner.Write(payload)

	outer := sha3.NewLegacyKeccak256()
	outer.Write(inner.Sum(nil))
	outer.Write([]byte(strconv.FormatInt(ts, 10)))
	return outer.Sum(nil)
}
