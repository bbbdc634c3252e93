package btc

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// NewUserKeychain creates a fresh BIP32 master key and returns the private and
// neutered (public) serializations.
func NewUserKeychain(params *chaincfg.Params) (xprv, xpub string, err error) {
	seed, err := hdkeychain.GenerateSeed(hdkeychain.RecommendedSeedLen)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate seed: %w", err)
	}

	master, err := hdkeychain.NewMaster(seed, params)
	if err != nil {
		return "", "", fmt.Errorf("failed to derive master key: %w", err)
	}

	pub, err := master.Neuter()
	if err != nil {
		return "", "", fmt.Errorf("failed to neuter master key: %w", err)
	}

	return master.String(), pub.String(), nil
}

// ReceiveAddress derives the first non-hardened child of an extended key
// (private or public) and encodes it as a P2WPKH address.
func ReceiveAddress(extendedKey string, params *chaincfg.Params) (string, error) {
	key, err := hdkeychain.NewKeyFromString(extendedKey)
	if err != nil {
		return "", fmt.Errorf("failed to parse extended key: %w", err)
	}

	child, err := key.Derive(0)
	if err != nil {
		return "", fmt.Errorf("failed to derive child key: %w", err)
	}

	pub, err := child.ECPubKey()
	if err != nil {
		return "", fmt.Errorf("failed to get public key: %w", err)
	}

	addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pub.SerializeCompressed()), params)
	if err != nil {
		return "", fmt.Errorf("failed to encode address: %w", err)
	}
	return addr.EncodeAddress(), nil
}
