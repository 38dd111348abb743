// Package momo implements the MoMo wallet v2 captureWallet flow:
// HMAC-SHA256 signed create-payment requests and redirect/IPN callback
// parsing.
package momo

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"etix/src/config"
	"etix/src/types"
)

type Client struct {
	cfg config.MomoConfig
	hc  *http.Client
}

func NewClient(cfg config.MomoConfig) *Client {
	return &Client{
		cfg: cfg,
		hc:  &http.Client{Timeout: 15 * time.Second},
	}
}

type CreateRequest struct {
	PartnerCode string `json:"partnerCode"`
	AccessKey   string `json:"accessKey"`
	RequestID   string `json:"requestId"`
	Amount      string `json:"amount"`
	OrderID     string `json:"orderId"`
	OrderInfo   string `json:"orderInfo"`
	RedirectURL string `json:"redirectUrl"`
	IPNURL      string `json:"ipnUrl"`
	ExtraData   string `json:"extraData"`
	RequestType string `json:"requestType"`
	Signature   string `json:"signature"`
	Lang        string `json:"lang"`
}

// BuildCreateRequest assembles and signs a create-payment request for
// the given order. Amount is in VND.
func (c *Client) BuildCreateRequest(orderId string, amount int64) *CreateRequest {
	req := &CreateRequest{
		PartnerCode: c.cfg.PartnerCode,
		AccessKey:   c.cfg.AccessKey,
		RequestID:   fmt.Sprintf("%s%d", c.cfg.PartnerCode, time.Now().UnixMilli()),
		Amount:      fmt.Sprintf("%d", amount),
		OrderID:     orderId,
		OrderInfo:   fmt.Sprintf("Pay for order #%s", orderId),
		RedirectURL: c.cfg.RedirectURL,
		IPNURL:      c.cfg.IPNURL,
		ExtraData:   "",
		RequestType: c.cfg.RequestType,
		Lang:        "vi",
	}
	req.Signature = SignHmacSHA256(rawCreateSignature(req), c.cfg.SecretKey)
	return req
}

// rawCreateSignature builds the string-to-sign. The gateway verifies
// against this exact field order, so it is spelled out rather than
// derived from the struct.
func rawCreateSignature(r *CreateRequest) string {
	return fmt.Sprintf(
		"accessKey=%s&amount=%s&extraData=%s&ipnUrl=%s&orderId=%s&orderInfo=%s&partnerCode=%s&redirectUrl=%s&requestId=%s&requestType=%s",
		r.AccessKey, r.Amount, r.ExtraData, r.IPNURL, r.OrderID, r.OrderInfo, r.PartnerCode, r.RedirectURL, r.RequestID, r.RequestType,
	)
}

func SignHmacSHA256(raw string, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

// CreatePayment posts the signed request to the gateway and returns
// the decoded provider response (payUrl, deeplink, resultCode, ...).
func (c *Client) CreatePayment(ctx context.Context, orderId string, amount int64) (types.JSONB, error) {
	req := c.BuildCreateRequest(orderId, amount)
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.CreateURL(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	res, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("momo create request: %w", err)
	}
	defer res.Body.Close()
	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("momo create response: %w", err)
	}
	if res.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("momo create returned status %d", res.StatusCode)
	}
	var data types.JSONB
	if err := json.Unmarshal(resBody, &data); err != nil {
		return nil, fmt.Errorf("momo create decode: %w", err)
	}
	data["requestId"] = req.RequestID
	return data, nil
}

// CallbackResult carries the fields of a redirect/IPN callback the
// reconciler cares about, plus the full query for audit storage.
type CallbackResult struct {
	OrderID    string
	RequestID  string
	TransID    string
	ResultCode string
	Message    string
	Amount     string
	Raw        types.JSONB
}

func (r *CallbackResult) Success() bool {
	return r.ResultCode == "0"
}

// ParseCallback validates a gateway callback query string. OrderId and
// resultCode are mandatory, everything else is carried as-is.
func ParseCallback(query url.Values) (*CallbackResult, error) {
	res := &CallbackResult{
		OrderID:    query.Get("orderId"),
		RequestID:  query.Get("requestId"),
		TransID:    query.Get("transId"),
		ResultCode: query.Get("resultCode"),
		Message:    query.Get("message"),
		Amount:     query.Get("amount"),
		Raw:        types.JSONB{},
	}
	if res.OrderID == "" || res.ResultCode == "" {
		return nil, fmt.Errorf("malformed gateway callback: missing orderId or resultCode")
	}
	for k := range query {
		res.Raw[k] = query.Get(k)
	}
	return res, nil
}
