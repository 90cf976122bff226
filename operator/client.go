// Package operator moves funds through the operator's signed wallet API.
// Pool vaults are held by the operator as house funds; only player wallets
// are debited or credited.
package operator

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Ashenafi-pixel/prize-wheel-engine/pool"
)

const (
	DefaultGameCode   = "prize-wheel"
	DefaultAPIVersion = "1.0"
)

// ErrUnsupportedTransfer is returned for transfers that neither start nor
// end at a vault account.
var ErrUnsupportedTransfer = errors.New("operator: transfer must involve a vault account")

// APIError is a non-zero code reported by the operator.
type APIError struct {
	Action     string
	Code       int
	Status     string
	Message    string
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("operator %s: code %d (%s): %s", e.Action, e.Code, e.Status, e.Message)
}

type Client struct {
	endpoint   string
	secret     string
	gameCode   string
	apiVersion string
	http       *http.Client
}

type Response struct {
	Code        int             `json:"code"`
	Status      string          `json:"status"`
	Message     string          `json:"message"`
	Balance     *uint64         `json:"balance,omitempty"`
	Body        json.RawMessage `json:"-"`
	StatusCode  int             `json:"-"`
	ContentType string          `json:"-"`
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

func WithGameCode(code string) Option { return func(c *Client) { c.gameCode = code } }

func NewClient(endpoint, secret string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		secret:     secret,
		gameCode:   DefaultGameCode,
		apiVersion: DefaultAPIVersion,
		http:       &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) call(ctx context.Context, params map[string]string) (*Response, error) {
	values := url.Values{}
	for k, v := range params {
		if v != "" {
			values.Set(k, v)
		}
	}
	values.Set("game_code", c.gameCode)
	values.Set("api_version", c.apiVersion)
	if c.secret != "" {
		values.Set("signature", c.sign(values))
	}
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, err
	}
	u.RawQuery = values.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var body json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("operator %s: decode response (http %d): %w", params["action"], resp.StatusCode, err)
	}
	out := &Response{
		Body:        body,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}
	_ = json.Unmarshal(body, out)
	if out.Code != 0 || resp.StatusCode >= http.StatusBadRequest {
		return out, &APIError{
			Action:     params["action"],
			Code:       out.Code,
			Status:     out.Status,
			Message:    out.Message,
			StatusCode: resp.StatusCode,
		}
	}
	return out, nil
}

// sign is HMAC-SHA256 over the parameter values ordered by key, excluding
// the action name.
func (c *Client) sign(v url.Values) string {
	keys := make([]string, 0, len(v))
	for k := range v {
		if k == "action" || k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf := make([]byte, 0, 256)
	for _, k := range keys {
		buf = append(buf, v.Get(k)...)
	}
	m := hmac.New(sha256.New, []byte(c.secret))
	m.Write(buf)
	return hex.EncodeToString(m.Sum(nil))
}

// PlayerBalance reports a player's wallet balance. Vault balances are not
// exposed by the operator, so Client does not act as a custody balancer.
func (c *Client) PlayerBalance(ctx context.Context, account string) (uint64, error) {
	resp, err := c.call(ctx, map[string]string{
		"action":    "balance",
		"player_id": account,
	})
	if err != nil {
		return 0, err
	}
	if resp.Balance == nil {
		return 0, fmt.Errorf("operator balance: response for %s has no balance", account)
	}
	return *resp.Balance, nil
}

func (c *Client) Debit(ctx context.Context, account, roundID, txID string, amount uint64) (*Response, error) {
	return c.call(ctx, map[string]string{
		"action":     "debit",
		"player_id":  account,
		"round_id":   roundID,
		"tx_id":      txID,
		"bet_amount": formatAmount(amount),
	})
}

func (c *Client) Credit(ctx context.Context, account, roundID, txID string, amount uint64) (*Response, error) {
	return c.call(ctx, map[string]string{
		"action":       "credit",
		"player_id":    account,
		"round_id":     roundID,
		"tx_id":        txID,
		"win_amount":   formatAmount(amount),
		"round_status": "completed",
	})
}

// Refund reverses an earlier debit identified by originalTxID.
func (c *Client) Refund(ctx context.Context, account, roundID, originalTxID string, amount uint64) (*Response, error) {
	return c.call(ctx, map[string]string{
		"action":        "refund",
		"player_id":     account,
		"round_id":      roundID,
		"tx_id":         uuid.NewString(),
		"original_tx":   originalTxID,
		"refund_amount": formatAmount(amount),
	})
}

// Transfer maps a pool transfer onto the wallet API: money entering a
// vault is a debit of the payer, money leaving a vault is a credit of the
// payee.
func (c *Client) Transfer(ctx context.Context, t pool.Transfer) error {
	switch {
	case isVault(t.To) && !isVault(t.From):
		_, err := c.Debit(ctx, t.From, roundID(t.To), t.ID, t.Amount)
		return err
	case isVault(t.From) && !isVault(t.To):
		_, err := c.Credit(ctx, t.To, roundID(t.From), t.ID, t.Amount)
		return err
	default:
		return ErrUnsupportedTransfer
	}
}

// Reverse undoes a completed transfer. Debits are refunded by id; credits
// are taken back with a fresh debit.
func (c *Client) Reverse(ctx context.Context, t pool.Transfer) error {
	switch {
	case isVault(t.To) && !isVault(t.From):
		_, err := c.Refund(ctx, t.From, roundID(t.To), t.ID, t.Amount)
		return err
	case isVault(t.From) && !isVault(t.To):
		_, err := c.Debit(ctx, t.To, roundID(t.From), uuid.NewString(), t.Amount)
		return err
	default:
		return ErrUnsupportedTransfer
	}
}

func isVault(account string) bool {
	_, ok := pool.VaultPool(account)
	return ok
}

func roundID(vault string) string {
	id, _ := pool.VaultPool(vault)
	return id
}

func formatAmount(v uint64) string {
	return strconv.FormatUint(v, 10)
}
