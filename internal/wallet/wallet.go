// Package wallet is the keypair helper backing the node binary's keygen
// subcommand and any future CLI/GUI wallet: generation, on-disk
// encoding, and transaction signing built on the same ed25519 keys the
// consensus engine verifies against.
package wallet

import (
	"bufio"
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/ccchain/ccchain/internal/chain"
	"github.com/ccchain/ccchain/internal/crypto"
)

// KeyPair is a validator or account identity: a public key plus its
// signing key.
type KeyPair struct {
	Public  chain.PubKey
	Private ed25519.PrivateKey
}

// Generate creates a fresh keypair from a secure random seed.
func Generate() (KeyPair, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return KeyPair{}, fmt.Errorf("wallet: read random seed: %w", err)
	}
	pub, priv := crypto.GenerateKey(seed)
	return KeyPair{Public: pub, Private: priv}, nil
}

// WriteFile persists the keypair as two hex lines (public key, then
// private key) at path, the format Load reads back.
func (k KeyPair) WriteFile(path string) error {
	content := fmt.Sprintf("%s\n%s\n", hex.EncodeToString(k.Public[:]), hex.EncodeToString(k.Private))
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("wallet: write %s: %w", path, err)
	}
	return nil
}

// Load reads a keypair previously written by WriteFile.
func Load(path string) (KeyPair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return KeyPair{}, fmt.Errorf("wallet: read %s: %w", path, err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) != 2 {
		return KeyPair{}, fmt.Errorf("wallet: malformed key file %s", path)
	}
	pubRaw, err := hex.DecodeString(lines[0])
	if err != nil || len(pubRaw) != len(chain.PubKey{}) {
		return KeyPair{}, fmt.Errorf("wallet: malformed public key in %s", path)
	}
	privRaw, err := hex.DecodeString(lines[1])
	if err != nil || len(privRaw) != ed25519.PrivateKeySize {
		return KeyPair{}, fmt.Errorf("wallet: malformed private key in %s", path)
	}
	var kp KeyPair
	copy(kp.Public[:], pubRaw)
	kp.Private = ed25519.PrivateKey(privRaw)
	return kp, nil
}

// SignTransaction signs tx in place with this keypair's private key.
func (k KeyPair) SignTransaction(tx *chain.Transaction) {
	crypto.SignTransaction(k.Private, tx)
}
