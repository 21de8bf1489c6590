// Package ethereum provides the secp256k1 signing keys used to identify and
// authenticate every signer in the voting core: the bulletin board itself,
// each trustee, and the election's cast-vote signing key. Every
// state-mutating board RPC request and every local-board message is
// authenticated with one of these keys.
package ethereum

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// personalPrefix matches Ethereum's EIP-191 "personal_sign" framing, reused
// here purely as a convenient, well-tested domain-separated hash-then-sign
// scheme; no on-chain meaning is implied.
const personalPrefix = "\x19Ethereum Signed Message:\n"

// SignKeys holds an ECDSA keypair used to sign and verify protocol
// messages.
type SignKeys struct {
	private *ecdsa.PrivateKey
	public  *ecdsa.PublicKey
}

// NewSignKeys returns an empty SignKeys. Call Generate or AddHexKey before
// using it.
func NewSignKeys() *SignKeys {
	return &SignKeys{}
}

// Generate creates a new random keypair.
func (s *SignKeys) Generate() error {
	key, err := crypto.GenerateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	s.private = key
	s.public = &key.PublicKey
	return nil
}

// AddHexKey imports a hex-encoded private key (with or without 0x prefix).
func (s *SignKeys) AddHexKey(hexKey string) error {
	key, err := crypto.HexToECDSA(trimHex(hexKey))
	if err != nil {
		return fmt.Errorf("decode private key: %w", err)
	}
	s.private = key
	s.public = &key.PublicKey
	return nil
}

func trimHex(k string) string {
	if len(k) >= 2 && k[0] == '0' && (k[1] == 'x' || k[1] == 'X') {
		return k[2:]
	}
	return k
}

// PublicKey returns the public key.
func (s *SignKeys) PublicKey() *ecdsa.PublicKey {
	return s.public
}

// PublicKeyBytes returns the uncompressed public key bytes.
func (s *SignKeys) PublicKeyBytes() []byte {
	return crypto.FromECDSAPub(s.public)
}

// HexString returns the hex-encoded (public, private) key pair.
func (s *SignKeys) HexString() (pub, priv string) {
	pub = fmt.Sprintf("%x", crypto.FromECDSAPub(s.public))
	priv = fmt.Sprintf("%x", crypto.FromECDSA(s.private))
	return pub, priv
}

// Address returns the Ethereum-style address derived from the public key.
func (s *SignKeys) Address() common.Address {
	return crypto.PubkeyToAddress(*s.public)
}

// AddressString returns the hex representation of Address.
func (s *SignKeys) AddressString() string {
	return s.Address().String()
}

// personalHash applies the EIP-191 "personal_sign" framing used as this
// package's domain-separated hash-then-sign scheme.
func personalHash(msg []byte) []byte {
	framed := fmt.Sprintf("%s%d%s", personalPrefix, len(msg), msg)
	return crypto.Keccak256([]byte(framed))
}

// SignEthereum signs msg under the personal-sign framing and returns the
// 65-byte (R || S || V) signature, V in {0,1}.
func (s *SignKeys) SignEthereum(msg []byte) ([]byte, error) {
	if s.private == nil {
		return nil, fmt.Errorf("no private key loaded")
	}
	sig, err := crypto.Sign(personalHash(msg), s.private)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	return sig, nil
}

// VerifyEthereum reports whether sig is a valid signature over msg by pub.
func VerifyEthereum(msg, sig []byte, pub *ecdsa.PublicKey) bool {
	recovered, err := AddrFromSignature(msg, sig)
	if err != nil {
		return false
	}
	return recovered == crypto.PubkeyToAddress(*pub)
}

// AddrFromPublicKey derives the address for a public key.
func AddrFromPublicKey(pub *ecdsa.PublicKey) (common.Address, error) {
	if pub == nil {
		return common.Address{}, fmt.Errorf("nil public key")
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// AddrFromSignature recovers the signer address from a personal-sign
// message and its 65-byte signature.
func AddrFromSignature(msg, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("invalid signature length: %d", len(sig))
	}
	pub, err := crypto.SigToPub(personalHash(msg), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyEthereumHex reports whether sig is a valid personal-sign signature
// over msg by the holder of pubHex (hex-encoded uncompressed public key,
// with or without 0x prefix). Used by the board and local board to check
// a request/message's signature against a named signer's known public
// key, without needing to load that signer's private key.
func VerifyEthereumHex(msg, sig []byte, pubHex string) (bool, error) {
	pubBytes, err := decodeHexKey(pubHex)
	if err != nil {
		return false, fmt.Errorf("decode public key: %w", err)
	}
	pub, err := crypto.UnmarshalPubkey(pubBytes)
	if err != nil {
		return false, fmt.Errorf("unmarshal public key: %w", err)
	}
	return VerifyEthereum(msg, sig, pub), nil
}

func decodeHexKey(s string) ([]byte, error) {
	return hex.DecodeString(trimHex(s))
}
