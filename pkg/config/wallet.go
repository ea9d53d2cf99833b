package config

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
)

// Wallet 交易钱包（Polymarket gateway 签名用）。
// Address 保留 common.Address，序列化时由调用方决定 checksum 形式。
type Wallet struct {
	PrivateKey *ecdsa.PrivateKey
	Address    common.Address
}

// ResolveWallet 解析钱包：优先使用 private_key，否则从助记词派生。
// 两者都没有配置时返回 nil（Polymarket gateway 不可用，但 Kalshi 不受影响）。
func (p *PolyConfig) ResolveWallet() (*Wallet, error) {
	if pk := strings.TrimSpace(p.PrivateKey); pk != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(pk, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid polymarket private key: %w", err)
		}
		return walletFromKey(key), nil
	}

	mnemonic := strings.TrimSpace(p.Mnemonic)
	if mnemonic == "" {
		return nil, nil
	}

	w, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("invalid mnemonic: %w", err)
	}
	path, err := hdwallet.ParseDerivationPath(p.DerivationPath)
	if err != nil {
		return nil, fmt.Errorf("invalid derivation_path: %w", err)
	}
	acct, err := w.Derive(path, false)
	if err != nil {
		return nil, fmt.Errorf("derive failed: %w", err)
	}
	key, err := w.PrivateKey(acct)
	if err != nil {
		return nil, fmt.Errorf("private key failed: %w", err)
	}
	return walletFromKey(key), nil
}

func walletFromKey(key *ecdsa.PrivateKey) *Wallet {
	return &Wallet{
		PrivateKey: key,
		Address:    crypto.PubkeyToAddress(key.PublicKey),
	}
}
