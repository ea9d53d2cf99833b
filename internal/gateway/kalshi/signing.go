package kalshi

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"strings"
)

// LoadPrivateKey 解析 RSA 私钥。
// 入参可以是 PEM 文本，也可以是 PEM 文件路径（配置两种写法都支持）。
func LoadPrivateKey(pemOrPath string) (*rsa.PrivateKey, error) {
	raw := strings.TrimSpace(pemOrPath)
	if raw == "" {
		return nil, fmt.Errorf("kalshi: private key is required")
	}
	if !strings.Contains(raw, "-----BEGIN") {
		b, err := os.ReadFile(raw)
		if err != nil {
			return nil, fmt.Errorf("kalshi: read private key file: %w", err)
		}
		raw = string(b)
	}

	block, _ := pem.Decode([]byte(raw))
	if block == nil {
		return nil, fmt.Errorf("kalshi: invalid PEM private key")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("kalshi: parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("kalshi: private key is not RSA")
	}
	return key, nil
}

// SignPSS 对 msg 做 RSA-PSS(SHA-256) 签名，返回 base64。
// msg 约定为 timestampMillis + method + path（Kalshi 的 API 签名口径）。
func SignPSS(key *rsa.PrivateKey, msg string) (string, error) {
	digest := sha256.Sum256([]byte(msg))
	sig, err := rsa.SignPSS(rand.Reader, key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return "", fmt.Errorf("kalshi: sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}
