// Package crypto provides the admission primitives: sr25519 device proofs
// and blake2b proof-of-work challenges.
package crypto

import (
	"github.com/ChainSafe/go-schnorrkel"
	"github.com/gtank/merlin"
)

// SigningContext is the domain-specific transcript label for device proofs.
const SigningContext = "SwarmAdmission"

// VerifySr25519 verifies an sr25519 signature over message.
func VerifySr25519(message, signature, publicKey []byte) (bool, error) {
	var pubKeyBytes [32]byte
	copy(pubKeyBytes[:], publicKey)

	pubKey, err := schnorrkel.NewPublicKey(pubKeyBytes)
	if err != nil {
		return false, err
	}

	var sigBytes [64]byte
	copy(sigBytes[:], signature)
	sig := new(schnorrkel.Signature)
	if err := sig.Decode(sigBytes); err != nil {
		return false, err
	}

	t := merlin.NewTranscript(SigningContext)
	t.AppendMessage([]byte("sign-bytes"), message)

	return pubKey.Verify(sig, t)
}

// SignSr25519 signs message with the given mini secret key. Used by node
// clients and tests to produce device proofs.
func SignSr25519(message []byte, key *schnorrkel.MiniSecretKey) ([]byte, error) {
	t := merlin.NewTranscript(SigningContext)
	t.AppendMessage([]byte("sign-bytes"), message)

	sig, err := key.ExpandEd25519().Sign(t)
	if err != nil {
		return nil, err
	}
	encoded := sig.Encode()
	return encoded[:], nil
}

// GenerateDeviceKey creates a fresh sr25519 keypair, returning the secret
// and the encoded public key.
func GenerateDeviceKey() (*schnorrkel.MiniSecretKey, []byte, error) {
	key, err := schnorrkel.GenerateMiniSecretKey()
	if err != nil {
		return nil, nil, err
	}
	pub := key.Public().Encode()
	return key, pub[:], nil
}
