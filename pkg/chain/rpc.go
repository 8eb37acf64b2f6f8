package chain

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// codeUnknownTransaction is returned by the node for hashes it has never seen.
const codeUnknownTransaction = -100

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rawTransaction struct {
	Hash          string `json:"hash"`
	BlockHash     string `json:"blockhash"`
	BlockHeight   int64  `json:"blockheight"`
	Confirmations int64  `json:"confirmations"`
	BlockTime     int64  `json:"blocktime"`
}

type RPC struct {
	url        string
	contract   string
	httpClient *http.Client
	seq        atomic.Int64
}

func NewRPC(url, contract string, timeout time.Duration) *RPC {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RPC{
		url:        strings.TrimRight(url, "/"),
		contract:   contract,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type sendResult struct {
	Hash string `json:"hash"`
}

// Commit broadcasts the commitment payload with sendrawtransaction and
// returns the transaction hash the node assigned. That hash is what
// GetStatus is later polled with.
func (c *RPC) Commit(ctx context.Context, caseID, hash string, ts time.Time) (string, error) {
	if hash == "" {
		return "", errors.New("empty commitment hash")
	}

	payload, err := json.Marshal(map[string]string{
		"case_id":      caseID,
		"contract":     c.contract,
		"timestamp":    ts.UTC().Format(time.RFC3339),
		"verdict_hash": hash,
	})
	if err != nil {
		return "", err
	}

	raw, err := c.call(ctx, "sendrawtransaction", base64.StdEncoding.EncodeToString(payload))
	if err != nil {
		return "", fmt.Errorf("broadcast commitment: %w", err)
	}

	var sent sendResult
	if err := json.Unmarshal(raw, &sent); err != nil {
		return "", fmt.Errorf("decode broadcast result: %w", err)
	}
	if sent.Hash == "" {
		return "", errors.New("node returned no transaction hash")
	}

	zap.L().Info("[Ledger] commitment broadcast",
		zap.String("case_id", caseID),
		zap.String("ledger_ref", sent.Hash),
	)
	return sent.Hash, nil
}

// GetStatus looks the reference up with getrawtransaction. Transport failures
// are returned as errors; a node-side rejection is reported as StatusError.
func (c *RPC) GetStatus(ctx context.Context, ref string) (Receipt, error) {
	receipt := Receipt{Ref: ref}

	raw, err := c.call(ctx, "getrawtransaction", ref, 1)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			if rpcErr.Code == codeUnknownTransaction {
				receipt.Status = StatusNotFound
				return receipt, nil
			}
			receipt.Status = StatusError
			receipt.Message = rpcErr.Message
			return receipt, nil
		}
		return receipt, err
	}

	if len(raw) == 0 || string(raw) == "null" || string(raw) == "{}" {
		receipt.Status = StatusNotFound
		return receipt, nil
	}

	var tx rawTransaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return receipt, fmt.Errorf("decode transaction: %w", err)
	}

	receipt.Confirmations = tx.Confirmations
	receipt.BlockHeight = tx.BlockHeight
	if tx.BlockHash == "" && tx.BlockHeight == 0 {
		receipt.Status = StatusPending
		return receipt, nil
	}

	receipt.Status = StatusConfirmed
	return receipt, nil
}

func (c *RPC) call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.seq.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rpc %s: unexpected status %d", method, resp.StatusCode)
	}

	var out rpcResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Error != nil {
		return nil, out.Error
	}

	return out.Result, nil
}
