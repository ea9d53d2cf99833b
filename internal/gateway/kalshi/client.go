package kalshi

import (
	"context"
	"crypto/rsa"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/predictbot/gopredict/internal/domain"
	"github.com/predictbot/gopredict/internal/faults"
	"github.com/predictbot/gopredict/internal/gateway"
	"github.com/predictbot/gopredict/pkg/config"
	"github.com/predictbot/gopredict/pkg/logger"
	"github.com/predictbot/gopredict/pkg/ratelimit"
)

// Client Kalshi trade API 客户端（签名 REST）。
// 每个请求带 KALSHI-ACCESS-KEY / SIGNATURE / TIMESTAMP 头，
// 签名内容为 timestampMillis + method + path。
type Client struct {
	http    *resty.Client
	apiKey  string
	privKey *rsa.PrivateKey
	limiter *ratelimit.TokenBucket
}

// NewClient 创建客户端
func NewClient(cfg config.KalshiConfig) (*Client, error) {
	key, err := LoadPrivateKey(cfg.PrivateKeyPEM)
	if err != nil {
		return nil, err
	}
	if cfg.APIKeyID == "" {
		return nil, fmt.Errorf("kalshi: api_key_id is required")
	}

	httpc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(30 * time.Second).
		SetHeader("Accept", "application/json")

	return &Client{
		http:    httpc,
		apiKey:  cfg.APIKeyID,
		privKey: key,
		limiter: ratelimit.NewTokenBucket(10, 10),
	}, nil
}

func (c *Client) signedRequest(ctx context.Context, method, path string) (*resty.Request, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	// 签名只覆盖 path（不含 query），与官方客户端一致
	u, err := url.Parse(c.http.BaseURL + path)
	if err != nil {
		return nil, err
	}
	sig, err := SignPSS(c.privKey, ts+method+u.Path)
	if err != nil {
		return nil, err
	}

	return c.http.R().
		SetContext(ctx).
		SetHeader("KALSHI-ACCESS-KEY", c.apiKey).
		SetHeader("KALSHI-ACCESS-SIGNATURE", sig).
		SetHeader("KALSHI-ACCESS-TIMESTAMP", ts), nil
}

func classify(resp *resty.Response, err error, op string) error {
	if err != nil {
		return faults.Transient(errors.Wrapf(err, "kalshi: %s", op))
	}
	code := resp.StatusCode()
	switch {
	case code < 300:
		return nil
	case code == http.StatusTooManyRequests || code >= 500:
		return faults.Transient(errors.Errorf("kalshi: %s: http %d: %s", op, code, resp.String()))
	default:
		return errors.Errorf("kalshi: %s: http %d: %s", op, code, resp.String())
	}
}

type orderPayload struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id"`
	Action        string `json:"action"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Count         int    `json:"count"`
	YesPrice      int    `json:"yes_price,omitempty"`
	NoPrice       int    `json:"no_price,omitempty"`
}

type orderEnvelope struct {
	Order struct {
		OrderID   string `json:"order_id"`
		Status    string `json:"status"`
		FillCount int    `json:"fill_count"`
		YesPrice  int    `json:"yes_price"`
		NoPrice   int    `json:"no_price"`
	} `json:"order"`
}

// Submit 提交订单。金额换算为合约张数：count = floor(amount / price)。
func (c *Client) Submit(ctx context.Context, order domain.BetOrder) (string, error) {
	count := int(math.Floor(order.Amount / order.Price.ToDecimal()))
	if count < 1 {
		count = 1
	}

	payload := orderPayload{
		Ticker:        order.MarketID,
		ClientOrderID: uuid.NewString(),
		Action:        "buy",
		Side:          string(order.Side),
		Type:          string(order.OrderType),
		Count:         count,
	}
	if order.Side == domain.SideYes {
		payload.YesPrice = order.Price.ToCents()
	} else {
		payload.NoPrice = order.Price.ToCents()
	}

	req, err := c.signedRequest(ctx, http.MethodPost, "/portfolio/orders")
	if err != nil {
		return "", err
	}
	var env orderEnvelope
	resp, err := req.SetBody(payload).SetResult(&env).Post("/portfolio/orders")
	if cErr := classify(resp, err, "submit"); cErr != nil {
		return "", cErr
	}

	logger.WithComponent("kalshi").
		Infof("submitted %s %s count=%d price=%dc id=%s",
			order.MarketID, order.Side, count, order.Price.ToCents(), env.Order.OrderID)
	return env.Order.OrderID, nil
}

// Status 查询订单状态
func (c *Client) Status(ctx context.Context, gatewayID string) (gateway.StatusReport, error) {
	path := "/portfolio/orders/" + gatewayID
	req, err := c.signedRequest(ctx, http.MethodGet, path)
	if err != nil {
		return gateway.StatusReport{}, err
	}
	var env orderEnvelope
	resp, err := req.SetResult(&env).Get(path)
	if cErr := classify(resp, err, "status"); cErr != nil {
		return gateway.StatusReport{}, cErr
	}

	priceCents := env.Order.YesPrice
	if priceCents == 0 {
		priceCents = env.Order.NoPrice
	}
	return gateway.StatusReport{
		Status:       mapStatus(env.Order.Status, env.Order.FillCount),
		FilledAmount: float64(env.Order.FillCount) * float64(priceCents) / 100.0,
	}, nil
}

func mapStatus(s string, fills int) domain.OrderStatus {
	switch s {
	case "executed", "filled":
		return domain.OrderStatusFilled
	case "canceled", "cancelled":
		return domain.OrderStatusCancelled
	case "rejected":
		return domain.OrderStatusRejected
	case "resting", "pending", "open":
		if fills > 0 {
			return domain.OrderStatusPartiallyFilled
		}
		return domain.OrderStatusPending
	default:
		return domain.OrderStatusPending
	}
}

// Cancel 撤单。404/已终态按幂等处理返回 nil。
func (c *Client) Cancel(ctx context.Context, gatewayID string) error {
	path := "/portfolio/orders/" + gatewayID
	req, err := c.signedRequest(ctx, http.MethodDelete, path)
	if err != nil {
		return err
	}
	resp, err := req.Delete(path)
	if err == nil && resp.StatusCode() == http.StatusNotFound {
		return nil
	}
	return classify(resp, err, "cancel")
}

type balanceEnvelope struct {
	Balance        int64 `json:"balance"`         // 可用现金（分）
	PortfolioValue int64 `json:"portfolio_value"` // 持仓市值（分）
}

// Balance 查询账户余额（API 返回分，这里转 decimal 美元）
func (c *Client) Balance(ctx context.Context) (domain.PortfolioSnapshot, error) {
	req, err := c.signedRequest(ctx, http.MethodGet, "/portfolio/balance")
	if err != nil {
		return domain.PortfolioSnapshot{}, err
	}
	var env balanceEnvelope
	resp, err := req.SetResult(&env).Get("/portfolio/balance")
	if cErr := classify(resp, err, "balance"); cErr != nil {
		return domain.PortfolioSnapshot{}, cErr
	}

	cents := decimal.NewFromInt(100)
	cash := decimal.NewFromInt(env.Balance).Div(cents)
	return domain.PortfolioSnapshot{
		Cash:       cash,
		TotalValue: cash.Add(decimal.NewFromInt(env.PortfolioValue).Div(cents)),
	}, nil
}
