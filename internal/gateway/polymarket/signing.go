package polymarket

import (
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// ctfExchange Polygon 主网 CTF Exchange 合约地址
const ctfExchange = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"

// orderData EIP-712 签名所需的订单字段
type orderData struct {
	Salt          int64
	Maker         string
	Signer        string
	TokenID       *big.Int
	MakerAmount   *big.Int
	TakerAmount   *big.Int
	Expiration    *big.Int
	Nonce         *big.Int
	FeeRateBps    *big.Int
	Side          uint8 // BUY = 0, SELL = 1
	SignatureType uint8
}

// signOrder 构建订单的 EIP-712 签名（domain: "Polymarket CTF Exchange" v1）
func signOrder(key *ecdsa.PrivateKey, chainID int64, od *orderData) (string, error) {
	domain := apitypes.TypedDataDomain{
		Name:              "Polymarket CTF Exchange",
		Version:           "1",
		ChainId:           math.NewHexOrDecimal256(chainID),
		VerifyingContract: ctfExchange,
	}

	types := apitypes.Types{
		"EIP712Domain": {
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		},
		"Order": {
			{Name: "salt", Type: "uint256"},
			{Name: "maker", Type: "address"},
			{Name: "signer", Type: "address"},
			{Name: "taker", Type: "address"},
			{Name: "tokenId", Type: "uint256"},
			{Name: "makerAmount", Type: "uint256"},
			{Name: "takerAmount", Type: "uint256"},
			{Name: "expiration", Type: "uint256"},
			{Name: "nonce", Type: "uint256"},
			{Name: "feeRateBps", Type: "uint256"},
			{Name: "side", Type: "uint8"},
			{Name: "signatureType", Type: "uint8"},
		},
	}

	message := map[string]interface{}{
		"salt":          big.NewInt(od.Salt),
		"maker":         common.HexToAddress(od.Maker).Hex(),
		"signer":        common.HexToAddress(od.Signer).Hex(),
		"taker":         common.HexToAddress("0x0000000000000000000000000000000000000000").Hex(),
		"tokenId":       od.TokenID,
		"makerAmount":   od.MakerAmount,
		"takerAmount":   od.TakerAmount,
		"expiration":    od.Expiration,
		"nonce":         od.Nonce,
		"feeRateBps":    od.FeeRateBps,
		"side":          big.NewInt(int64(od.Side)),
		"signatureType": big.NewInt(int64(od.SignatureType)),
	}

	typed := apitypes.TypedData{
		Types:       types,
		PrimaryType: "Order",
		Domain:      domain,
		Message:     message,
	}

	hash, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return "", fmt.Errorf("polymarket: eip712 hash: %w", err)
	}
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return "", fmt.Errorf("polymarket: sign order: %w", err)
	}
	return "0x" + common.Bytes2Hex(sig), nil
}

// hmacSignature CLOB L2 认证签名：HMAC-SHA256(timestamp+method+path+body)。
// secret 是 base64url，签名结果也转回 base64url。
func hmacSignature(secret string, timestamp int64, method, path, body string) (string, error) {
	sanitized := strings.ReplaceAll(secret, "-", "+")
	sanitized = strings.ReplaceAll(sanitized, "_", "/")
	keyData, err := base64.StdEncoding.DecodeString(sanitized)
	if err != nil {
		return "", fmt.Errorf("polymarket: decode api secret: %w", err)
	}

	msg := strconv.FormatInt(timestamp, 10) + method + path + body
	mac := hmac.New(sha256.New, keyData)
	mac.Write([]byte(msg))

	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	sig = strings.ReplaceAll(sig, "+", "-")
	sig = strings.ReplaceAll(sig, "/", "_")
	return sig, nil
}
