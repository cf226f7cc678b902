// Package erp talks to an Odoo-style JSON-RPC backend. Authentication is
// a login call whose uid is cached for the life of the client and
// re-established once on session expiry.
package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ordersync/core"
)

const (
	defaultTimeout = 10 * time.Second
	jsonrpcPath    = "/jsonrpc"
)

type Config struct {
	Endpoint string
	Database string
	Username string
	APIKey   string
	Timeout  time.Duration
}

type Client struct {
	config     Config
	httpClient *http.Client

	mu  sync.Mutex
	uid int
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("erp: endpoint is required")
	}
	if strings.TrimSpace(cfg.Database) == "" {
		return nil, fmt.Errorf("erp: database is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) CreateSaleOrder(ctx context.Context, in core.CreateSaleOrderInput) (string, error) {
	if c == nil {
		return "", fmt.Errorf("erp: client is not configured")
	}
	if strings.TrimSpace(in.Reference) == "" {
		return "", erpRejected("erp: sale order reference is required", nil)
	}

	lines := make([]any, 0, len(in.Lines))
	for _, line := range in.Lines {
		lines = append(lines, map[string]any{
			"product_ref": line.ProductRef,
			"qty":         line.Quantity,
			"price_unit":  line.UnitPrice,
		})
	}
	record := map[string]any{
		"client_order_ref": in.Reference,
		"partner_ref":      in.PartnerRef,
		"order_line":       lines,
	}

	var orderID json.Number
	if err := c.executeKw(ctx, "sale.order", "create", []any{record}, &orderID); err != nil {
		return "", err
	}
	id := orderID.String()
	if id == "" || id == "0" {
		return "", erpRejected("erp: create returned no order id", map[string]any{
			"reference": in.Reference,
		})
	}
	return id, nil
}

func (c *Client) ConfirmSaleOrder(ctx context.Context, erpOrderID string) error {
	if c == nil {
		return fmt.Errorf("erp: client is not configured")
	}
	id, err := orderIDArg(erpOrderID)
	if err != nil {
		return err
	}
	var ok any
	return c.executeKw(ctx, "sale.order", "action_confirm", []any{[]any{id}}, &ok)
}

func (c *Client) CancelSaleOrder(ctx context.Context, erpOrderID string) error {
	if c == nil {
		return fmt.Errorf("erp: client is not configured")
	}
	id, err := orderIDArg(erpOrderID)
	if err != nil {
		return err
	}
	var ok any
	return c.executeKw(ctx, "sale.order", "action_cancel", []any{[]any{id}}, &ok)
}

func orderIDArg(erpOrderID string) (json.Number, error) {
	erpOrderID = strings.TrimSpace(erpOrderID)
	if erpOrderID == "" {
		return "", erpRejected("erp: order id is required", nil)
	}
	return json.Number(erpOrderID), nil
}

func (c *Client) executeKw(ctx context.Context, model, method string, args []any, out any) error {
	uid, err := c.login(ctx, false)
	if err != nil {
		return err
	}

	err = c.call(ctx, "object", "execute_kw", []any{
		c.config.Database, uid, c.config.APIKey, model, method, args,
	}, out)
	if err == nil {
		return nil
	}
	if !isSessionExpired(err) {
		return err
	}

	// session expired; re-login once and retry
	uid, loginErr := c.login(ctx, true)
	if loginErr != nil {
		return loginErr
	}
	return c.call(ctx, "object", "execute_kw", []any{
		c.config.Database, uid, c.config.APIKey, model, method, args,
	}, out)
}

func (c *Client) login(ctx context.Context, force bool) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.uid != 0 && !force {
		return c.uid, nil
	}

	var uid json.Number
	err := c.call(ctx, "common", "login", []any{
		c.config.Database, c.config.Username, c.config.APIKey,
	}, &uid)
	if err != nil {
		return 0, err
	}
	parsed, parseErr := uid.Int64()
	if parseErr != nil || parsed == 0 {
		return 0, erpRejected("erp: login rejected", map[string]any{
			"database": c.config.Database,
			"username": c.config.Username,
		})
	}
	c.uid = int(parsed)
	return c.uid, nil
}

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
	ID      int64     `json:"id"`
}

type rpcParams struct {
	Service string `json:"service"`
	Method  string `json:"method"`
	Args    []any  `json:"args"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

func (c *Client) call(ctx context.Context, service, method string, args []any, out any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  rpcParams{Service: service, Method: method, Args: args},
		ID:      time.Now().UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("erp: request encode failed: %w", err)
	}

	endpoint := strings.TrimRight(c.config.Endpoint, "/") + jsonrpcPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("erp: request build failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return erpUnavailable("erp: backend unreachable", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return erpUnavailable("erp: response read failed", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return erpUnavailable(fmt.Sprintf("erp: backend returned %d", resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return erpRejected(fmt.Sprintf("erp: backend returned %d", resp.StatusCode), nil)
	}

	var decoded rpcResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return erpUnavailable("erp: response decode failed", err)
	}
	if decoded.Error != nil {
		return mapRPCError(decoded.Error)
	}
	if out != nil && len(decoded.Result) > 0 {
		decoder := json.NewDecoder(bytes.NewReader(decoded.Result))
		decoder.UseNumber()
		if err := decoder.Decode(out); err != nil {
			return erpUnavailable("erp: result decode failed", err)
		}
	}
	return nil
}

func mapRPCError(rpcErr *rpcError) error {
	message := strings.TrimSpace(rpcErr.Message)
	if message == "" {
		message = "erp: rpc fault"
	}
	lowered := strings.ToLower(message)
	if name, ok := rpcErr.Data["name"].(string); ok {
		lowered += " " + strings.ToLower(name)
	}
	switch {
	case strings.Contains(lowered, "sessionexpired"), strings.Contains(lowered, "session expired"):
		return core.MarkTransient(
			goerrors.New(message, goerrors.CategoryAuth).
				WithTextCode(core.SyncErrorErpUnavailable).
				WithMetadata(map[string]any{"rpc_code": rpcErr.Code, "session_expired": true}),
		)
	case strings.Contains(lowered, "concurrency"), strings.Contains(lowered, "serialization"),
		strings.Contains(lowered, "operationalerror"):
		return erpUnavailable(message, nil)
	}
	return erpRejected(message, map[string]any{"rpc_code": rpcErr.Code})
}

func isSessionExpired(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Metadata == nil {
		return false
	}
	expired, ok := richErr.Metadata["session_expired"].(bool)
	return ok && expired
}

func erpUnavailable(message string, cause error) error {
	err := goerrors.New(message, goerrors.CategoryExternal).
		WithTextCode(core.SyncErrorErpUnavailable)
	if cause != nil {
		err = goerrors.Wrap(cause, goerrors.CategoryExternal, message).
			WithTextCode(core.SyncErrorErpUnavailable)
	}
	return core.MarkTransient(err)
}

func erpRejected(message string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryValidation).
		WithTextCode(core.SyncErrorErpRejected)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return core.MarkPermanent(err)
}

var _ core.ErpClient = (*Client)(nil)
