package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/predictbot/gopredict/internal/domain"
	"github.com/predictbot/gopredict/internal/faults"
	"github.com/predictbot/gopredict/internal/gateway"
	"github.com/predictbot/gopredict/pkg/config"
	"github.com/predictbot/gopredict/pkg/logger"
	"github.com/predictbot/gopredict/pkg/ratelimit"
)

// usdcDecimals USDC 6 位小数，CTF token 同样按 1e6 计
const usdcDecimals = 6

// Client Polymarket CLOB 客户端。
// 订单本体用钱包私钥做 EIP-712 签名（L1），
// 请求头用 api secret 做 HMAC 签名（L2）。
type Client struct {
	http    *resty.Client
	cfg     config.PolyConfig
	wallet  *config.Wallet
	limiter *ratelimit.TokenBucket
}

// NewClient 创建客户端。需要已解析的钱包。
func NewClient(cfg config.PolyConfig, wallet *config.Wallet) (*Client, error) {
	if wallet == nil {
		return nil, fmt.Errorf("polymarket: wallet is required")
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("polymarket: api_key/api_secret are required")
	}

	httpc := resty.New().
		SetBaseURL(cfg.ClobURL).
		SetTimeout(30 * time.Second).
		SetHeader("Accept", "application/json")

	return &Client{
		http:    httpc,
		cfg:     cfg,
		wallet:  wallet,
		limiter: ratelimit.NewTokenBucket(10, 10),
	}, nil
}

// l2Request 构造带 L2 认证头的请求
func (c *Client) l2Request(ctx context.Context, method, path string, body interface{}) (*resty.Request, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var bodyStr string
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyStr = string(raw)
	}

	ts := time.Now().Unix()
	sig, err := hmacSignature(c.cfg.APISecret, ts, method, path, bodyStr)
	if err != nil {
		return nil, err
	}

	req := c.http.R().
		SetContext(ctx).
		SetHeader("POLY_ADDRESS", c.wallet.Address.Hex()).
		SetHeader("POLY_SIGNATURE", sig).
		SetHeader("POLY_TIMESTAMP", strconv.FormatInt(ts, 10)).
		SetHeader("POLY_API_KEY", c.cfg.APIKey).
		SetHeader("POLY_PASSPHRASE", c.cfg.APIPassphrase)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(bodyStr)
	}
	return req, nil
}

func classify(resp *resty.Response, err error, op string) error {
	if err != nil {
		return faults.Transient(errors.Wrapf(err, "polymarket: %s", op))
	}
	code := resp.StatusCode()
	switch {
	case code < 300:
		return nil
	case code == http.StatusTooManyRequests || code >= 500:
		return faults.Transient(errors.Errorf("polymarket: %s: http %d: %s", op, code, resp.String()))
	default:
		return errors.Errorf("polymarket: %s: http %d: %s", op, code, resp.String())
	}
}

type signedOrder struct {
	Salt          string `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

type orderRequest struct {
	Order     signedOrder `json:"order"`
	Owner     string      `json:"owner"`
	OrderType string      `json:"orderType"`
}

type orderResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderID"`
	Status  string `json:"status"`
	Error   string `json:"errorMsg"`
}

// Submit 构建、签名并提交订单。
// MarketID 直接作为 outcome token ID 使用；买入侧
// makerAmount = 花费的 USDC，takerAmount = 换回的 token 数。
func (c *Client) Submit(ctx context.Context, order domain.BetOrder) (string, error) {
	tokenID, ok := new(big.Int).SetString(order.MarketID, 10)
	if !ok {
		return "", errors.Errorf("polymarket: market id %q is not a token id", order.MarketID)
	}

	price := order.Price.ToDecimal()
	scale := decimal.New(1, usdcDecimals)
	maker := decimal.NewFromFloat(order.Amount).Mul(scale).Truncate(0)
	taker := decimal.NewFromFloat(order.Amount).Div(decimal.NewFromFloat(price)).Mul(scale).Truncate(0)

	od := &orderData{
		Salt:        rand.Int63(),
		Maker:       c.wallet.Address.Hex(),
		Signer:      c.wallet.Address.Hex(),
		TokenID:     tokenID,
		MakerAmount: maker.BigInt(),
		TakerAmount: taker.BigInt(),
		Expiration:  big.NewInt(0),
		Nonce:       big.NewInt(0),
		FeeRateBps:  big.NewInt(0),
		Side:        0, // BUY
	}
	sig, err := signOrder(c.wallet.PrivateKey, c.cfg.ChainID, od)
	if err != nil {
		return "", err
	}

	orderType := "GTC"
	if order.OrderType == domain.OrderTypeMarket {
		orderType = "FOK"
	}
	body := orderRequest{
		Order: signedOrder{
			Salt:        strconv.FormatInt(od.Salt, 10),
			Maker:       od.Maker,
			Signer:      od.Signer,
			Taker:       "0x0000000000000000000000000000000000000000",
			TokenID:     od.TokenID.String(),
			MakerAmount: od.MakerAmount.String(),
			TakerAmount: od.TakerAmount.String(),
			Expiration:  "0",
			Nonce:       "0",
			FeeRateBps:  "0",
			Side:        "BUY",
			Signature:   sig,
		},
		Owner:     c.cfg.APIKey,
		OrderType: orderType,
	}

	req, err := c.l2Request(ctx, http.MethodPost, "/order", body)
	if err != nil {
		return "", err
	}
	var env orderResponse
	resp, err := req.SetResult(&env).Post("/order")
	if cErr := classify(resp, err, "submit"); cErr != nil {
		return "", cErr
	}
	if !env.Success {
		return "", errors.Errorf("polymarket: submit rejected: %s", env.Error)
	}

	logger.WithComponent("polymarket").
		Infof("submitted token=%s amount=%.2f price=%.4f id=%s",
			order.MarketID, order.Amount, price, env.OrderID)
	return env.OrderID, nil
}

type orderDetail struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	SizeMatched  string `json:"size_matched"`
	Price        string `json:"price"`
	OriginalSize string `json:"original_size"`
}

// Status 查询订单状态
func (c *Client) Status(ctx context.Context, gatewayID string) (gateway.StatusReport, error) {
	path := "/data/order/" + gatewayID
	req, err := c.l2Request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return gateway.StatusReport{}, err
	}
	var detail orderDetail
	resp, err := req.SetResult(&detail).Get(path)
	if cErr := classify(resp, err, "status"); cErr != nil {
		return gateway.StatusReport{}, cErr
	}

	matched, _ := decimal.NewFromString(detail.SizeMatched)
	price, _ := decimal.NewFromString(detail.Price)
	filled, _ := matched.Mul(price).Float64()
	return gateway.StatusReport{
		Status:       mapStatus(detail.Status, matched.IsPositive()),
		FilledAmount: filled,
	}, nil
}

func mapStatus(s string, partial bool) domain.OrderStatus {
	switch s {
	case "matched", "filled":
		return domain.OrderStatusFilled
	case "canceled", "cancelled":
		return domain.OrderStatusCancelled
	case "rejected", "insufficient_balance":
		return domain.OrderStatusRejected
	case "live", "delayed", "unmatched":
		if partial {
			return domain.OrderStatusPartiallyFilled
		}
		return domain.OrderStatusPending
	default:
		return domain.OrderStatusPending
	}
}

type cancelBody struct {
	OrderID string `json:"orderID"`
}

// Cancel 撤单。对已终态订单返回的 not found 按幂等处理。
func (c *Client) Cancel(ctx context.Context, gatewayID string) error {
	req, err := c.l2Request(ctx, http.MethodDelete, "/order", cancelBody{OrderID: gatewayID})
	if err != nil {
		return err
	}
	resp, err := req.Delete("/order")
	if err == nil && resp.StatusCode() == http.StatusNotFound {
		return nil
	}
	return classify(resp, err, "cancel")
}

type balanceDetail struct {
	Balance string `json:"balance"` // USDC 最小单位
}

// Balance 查询 USDC 可用余额
func (c *Client) Balance(ctx context.Context) (domain.PortfolioSnapshot, error) {
	path := "/balance-allowance?asset_type=COLLATERAL"
	req, err := c.l2Request(ctx, http.MethodGet, "/balance-allowance", nil)
	if err != nil {
		return domain.PortfolioSnapshot{}, err
	}
	var detail balanceDetail
	resp, err := req.SetResult(&detail).Get(path)
	if cErr := classify(resp, err, "balance"); cErr != nil {
		return domain.PortfolioSnapshot{}, cErr
	}

	raw, err := decimal.NewFromString(detail.Balance)
	if err != nil {
		return domain.PortfolioSnapshot{}, errors.Wrap(err, "polymarket: parse balance")
	}
	cash := raw.Div(decimal.New(1, usdcDecimals))
	return domain.PortfolioSnapshot{Cash: cash, TotalValue: cash}, nil
}
