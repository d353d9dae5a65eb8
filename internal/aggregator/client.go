package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	xerrors "ChatWallet/internal/errors"
)

const defaultTimeout = 10 * time.Second

// Config 描述了调用聚合器所需的信息。
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// QuoteParams 是报价请求，金额为源代币的最小单位。
type QuoteParams struct {
	SrcChainID uint64
	DstChainID uint64
	SrcToken   common.Address
	DstToken   common.Address
	Amount     *big.Int
	Wallet     common.Address
}

// QuoteResponse 是聚合器返回的报价。Raw 保留原始响应，执行时原样回传。
type QuoteResponse struct {
	QuoteID      string
	DstAmount    *big.Int
	SecretsCount int
	Raw          json.RawMessage
}

// OrderRequest 提交一笔带哈希锁的兑换订单。
type OrderRequest struct {
	QuoteID      string          `json:"quoteId"`
	Maker        string          `json:"maker"`
	SrcChainID   uint64          `json:"srcChainId"`
	HashLock     string          `json:"hashLock"`
	SecretHashes []string        `json:"secretHashes"`
	Signature    string          `json:"signature"`
	Quote        json.RawMessage `json:"quote"`
}

// OrderResponse 是下单结果。
type OrderResponse struct {
	OrderHash string `json:"orderHash"`
}

// BridgeRequest 提交跨链消息。
type BridgeRequest struct {
	QuoteID    string          `json:"quoteId"`
	Sender     string          `json:"sender"`
	Recipient  string          `json:"recipient"`
	SrcChainID uint64          `json:"srcChainId"`
	DstChainID uint64          `json:"dstChainId"`
	Token      string          `json:"token"`
	Amount     string          `json:"amount"`
	Signature  string          `json:"signature"`
	Quote      json.RawMessage `json:"quote"`
}

// BridgeResponse 是跨链提交结果。
type BridgeResponse struct {
	MessageID string `json:"messageId"`
}

// Client 通过 HTTP 调用兑换/跨链聚合器。
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient 根据配置创建聚合器客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("未提供聚合器 API Key")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("未配置聚合器地址")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Quote 获取跨链或同链报价。
func (c *Client) Quote(ctx context.Context, params QuoteParams) (*QuoteResponse, error) {
	if params.Amount == nil || params.Amount.Sign() <= 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "quote amount must be positive")
	}
	query := url.Values{}
	query.Set("srcChain", strconv.FormatUint(params.SrcChainID, 10))
	query.Set("dstChain", strconv.FormatUint(params.DstChainID, 10))
	query.Set("srcTokenAddress", params.SrcToken.Hex())
	query.Set("dstTokenAddress", params.DstToken.Hex())
	query.Set("amount", params.Amount.String())
	query.Set("walletAddress", params.Wallet.Hex())
	query.Set("enableEstimate", "true")

	raw, err := c.do(ctx, http.MethodGet, "/quoter/v1.0/quote/receive?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var decoded struct {
		QuoteID           string `json:"quoteId"`
		DstTokenAmount    string `json:"dstTokenAmount"`
		RecommendedPreset string `json:"recommendedPreset"`
		Presets           map[string]struct {
			SecretsCount int `json:"secretsCount"`
		} `json:"presets"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "解析聚合器报价失败")
	}

	resp := &QuoteResponse{QuoteID: decoded.QuoteID, SecretsCount: 1, Raw: json.RawMessage(raw)}
	if preset, ok := decoded.Presets[decoded.RecommendedPreset]; ok && preset.SecretsCount > 0 {
		resp.SecretsCount = preset.SecretsCount
	}
	if amount, ok := new(big.Int).SetString(strings.TrimSpace(decoded.DstTokenAmount), 10); ok && amount.Sign() > 0 {
		resp.DstAmount = amount
	}
	return resp, nil
}

// PlaceOrder 提交已签名的兑换订单。
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	raw, err := c.postJSON(ctx, "/relayer/v1.0/submit", req)
	if err != nil {
		return nil, err
	}
	var resp OrderResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "解析下单响应失败")
	}
	if resp.OrderHash == "" {
		return nil, xerrors.New(xerrors.CodeUpstreamFailure, "下单响应缺少 orderHash")
	}
	return &resp, nil
}

// SubmitBridge 提交跨链消息。
func (c *Client) SubmitBridge(ctx context.Context, req BridgeRequest) (*BridgeResponse, error) {
	raw, err := c.postJSON(ctx, "/bridge/v1.0/submit", req)
	if err != nil {
		return nil, err
	}
	var resp BridgeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "解析跨链响应失败")
	}
	if resp.MessageID == "" {
		return nil, xerrors.New(xerrors.CodeUpstreamFailure, "跨链响应缺少 messageId")
	}
	return &resp, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("序列化聚合器请求失败: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, payload)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("构建聚合器请求失败: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "聚合器请求超时")
		}
		return nil, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "请求聚合器失败")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "读取聚合器响应失败")
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, xerrors.New(xerrors.CodeRateLimited, "", xerrors.WithPublic(false))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, xerrors.New(xerrors.CodeUpstreamFailure,
			fmt.Sprintf("聚合器返回错误状态 %d: %s", resp.StatusCode, truncate(string(raw))),
			xerrors.WithMetadata("status", strconv.Itoa(resp.StatusCode)),
		)
	}
	return raw, nil
}

func truncate(text string) string {
	text = strings.TrimSpace(text)
	if len([]rune(text)) > 200 {
		return string([]rune(text)[:200]) + "..."
	}
	return text
}
