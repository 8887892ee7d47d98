// Package opsirpc is the production backend.Port adapter: a JSON-RPC
// client for the opsi configuration service's HTTP API. It is the one
// stdlib-only component of the backend layer — the service it talks to
// is a fixed external wire format (opsi's JSON-RPC-over-HTTP), and no
// third-party client for it exists to depend on. Every call is a single
// JSON-RPC request/response round trip; there is no batching.
package opsirpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/cochaviz/opsipxeconfd/internal/model"
)

// Client is a backend.Port backed by an opsi configuration service.
type Client struct {
	baseURL  string
	username string
	password model.Secret
	http     *http.Client
}

// New returns a Client pointed at baseURL (e.g.
// "https://localhost:4447/rpc"), authenticating with username/password.
func New(baseURL, username string, password model.Secret, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, username: username, password: password, http: httpClient}
}

type rpcRequest struct {
	ID     int           `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

type rpcResponse struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Message string `json:"message"`
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	body, err := json.Marshal(rpcRequest{ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.username, c.password.Reveal())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: http %d: %s", method, resp.StatusCode, raw)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return fmt.Errorf("%s: decode envelope: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%s: %s", method, rpcResp.Error.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

func (c *Client) ListDepotClients(ctx context.Context, depotID string) ([]model.HostID, error) {
	var ids []string
	if err := c.call(ctx, "host_getIdents", []interface{}{"hash", map[string]string{"type": "OpsiClient", "depotId": depotID}}, &ids); err != nil {
		return nil, err
	}
	out := make([]model.HostID, 0, len(ids))
	for _, id := range ids {
		hostID, err := model.CanonicalizeHostID(id)
		if err != nil {
			return nil, fmt.Errorf("canonicalize depot client %q: %w", id, err)
		}
		out = append(out, hostID)
	}
	return out, nil
}

func (c *Client) ListNetbootActions(ctx context.Context, hostIDs []model.HostID, requested []model.BootAction) ([]model.ProductOnClient, error) {
	ids := make([]string, len(hostIDs))
	for i, id := range hostIDs {
		ids[i] = string(id)
	}

	filter := map[string]interface{}{"clientId": ids, "productType": "NetbootProduct"}
	if len(requested) > 0 {
		actions := make([]string, len(requested))
		for i, a := range requested {
			actions[i] = string(a)
		}
		filter["actionRequest"] = actions
	}

	var pocs []model.ProductOnClient
	if err := c.call(ctx, "productOnClient_getObjects", []interface{}{nil, filter}, &pocs); err != nil {
		return nil, err
	}
	return pocs, nil
}

func (c *Client) GetHost(ctx context.Context, id model.HostID) (model.HostRecord, error) {
	var hosts []model.HostRecord
	if err := c.call(ctx, "host_getObjects", []interface{}{nil, map[string]string{"id": string(id)}}, &hosts); err != nil {
		return model.HostRecord{}, err
	}
	if len(hosts) == 0 {
		return model.HostRecord{}, fmt.Errorf("host %s not found", id)
	}
	return hosts[0], nil
}

func (c *Client) ListProductsOnDepot(ctx context.Context, depotID string, productIDs []string) ([]model.ProductOnDepot, error) {
	filter := map[string]interface{}{"depotId": depotID}
	if len(productIDs) > 0 {
		filter["productId"] = productIDs
	}
	var pods []model.ProductOnDepot
	if err := c.call(ctx, "productOnDepot_getObjects", []interface{}{nil, filter}, &pods); err != nil {
		return nil, err
	}
	return pods, nil
}

func (c *Client) GetNetbootProduct(ctx context.Context, productID, productVersion, packageVersion string) (model.NetbootProduct, error) {
	filter := map[string]string{
		"id":             productID,
		"productVersion": productVersion,
		"packageVersion": packageVersion,
		"type":           "NetbootProduct",
	}
	var products []model.NetbootProduct
	if err := c.call(ctx, "product_getObjects", []interface{}{nil, filter}, &products); err != nil {
		return model.NetbootProduct{}, err
	}
	if len(products) == 0 {
		return model.NetbootProduct{}, fmt.Errorf("netboot product %s %s %s not found", productID, productVersion, packageVersion)
	}
	return products[0], nil
}

func (c *Client) GetConfigState(ctx context.Context, hostID model.HostID, configID string) ([]string, error) {
	var states []model.ProductPropertyState // reused shape: {PropertyID, Values}
	if err := c.call(ctx, "configState_getObjects", []interface{}{nil, map[string]string{"objectId": string(hostID), "configId": configID}}, &states); err != nil {
		return nil, err
	}
	if len(states) == 0 {
		return nil, nil
	}
	return states[0].Values, nil
}

func (c *Client) GetProductPropertyStates(ctx context.Context, hostID model.HostID, productIDs []string) ([]model.ProductPropertyState, error) {
	filter := map[string]interface{}{"objectId": string(hostID)}
	if len(productIDs) > 0 {
		filter["productId"] = productIDs
	}
	var states []model.ProductPropertyState
	if err := c.call(ctx, "productPropertyState_getObjects", []interface{}{nil, filter}, &states); err != nil {
		return nil, err
	}
	return states, nil
}

func (c *Client) UpdateProductOnClients(ctx context.Context, updates []model.ProductOnClient) error {
	return c.call(ctx, "productOnClient_updateObjects", []interface{}{updates}, nil)
}

func (c *Client) SetBackendOptions(ctx context.Context, opts model.BackendOptions) error {
	return c.call(ctx, "backend_setOptions", []interface{}{map[string]bool{
		"addProductPropertyStateDefaults": opts.AddProductPropertyStateDefaults,
		"addConfigStateDefaults":          opts.AddConfigStateDefaults,
	}}, nil)
}
