package solana

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rpcServer answers every request with result(req).
func rpcServer(t *testing.T, result func(req rpcRequest) interface{}) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result(req),
		})
	}))
	t.Cleanup(server.Close)
	return server
}

const parsedSwapTx = `{
  "slot": 250000000,
  "blockTime": 1700000000,
  "meta": {
    "err": null,
    "fee": 5000,
    "preBalances": [2000000000, 2039280],
    "postBalances": [999995000, 2039280],
    "preTokenBalances": [],
    "postTokenBalances": [
      {"accountIndex": 1, "mint": "MintA", "owner": "Wallet1", "programId": "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA",
       "uiTokenAmount": {"amount": "1000000000", "decimals": 6, "uiAmountString": "1000"}}
    ],
    "innerInstructions": [
      {"index": 1, "instructions": [
        {"program": "spl-token", "programId": "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA",
         "parsed": {"type": "transferChecked", "info": {"source": "PoolA", "destination": "Ata1", "authority": "Pool",
           "mint": "MintA", "tokenAmount": {"amount": "1000000000", "decimals": 6}}}}
      ]}
    ],
    "logMessages": ["Program log: swap"]
  },
  "transaction": {
    "signatures": ["sigSwap"],
    "message": {
      "accountKeys": [
        {"pubkey": "Wallet1", "signer": true, "writable": true},
        {"pubkey": "Ata1", "signer": false, "writable": true}
      ],
      "instructions": [
        {"program": "spl-memo", "programId": "MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr", "parsed": "hello"},
        {"programId": "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4", "accounts": [], "data": "abc"},
        {"program": "system", "programId": "11111111111111111111111111111111",
         "parsed": {"type": "transfer", "info": {"source": "Wallet1", "destination": "Pool", "lamports": 1000000000}}}
      ]
    }
  }
}`

func TestHTTPClient_GetParsedTransaction(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) interface{} {
		assert.Equal(t, "getTransaction", req.Method)
		opts := req.Params[1].(map[string]interface{})
		assert.Equal(t, "jsonParsed", opts["encoding"])
		return json.RawMessage(parsedSwapTx)
	})

	client := NewHTTPClient(server.URL)
	tx, err := client.GetParsedTransaction(context.Background(), "sigSwap")
	require.NoError(t, err)
	require.NotNil(t, tx)

	assert.Equal(t, "sigSwap", tx.Signature)
	assert.Equal(t, int64(250000000), tx.Slot)
	assert.Equal(t, int64(1700000000), tx.BlockTime)
	assert.False(t, tx.Failed())
	assert.Equal(t, 0, tx.AccountIndex("Wallet1"))
	assert.Equal(t, -1, tx.AccountIndex("Nobody"))
	assert.True(t, tx.AccountKeys[0].Signer)

	require.NotNil(t, tx.Meta)
	assert.Equal(t, uint64(5000), tx.Meta.Fee)
	require.Len(t, tx.Meta.PostTokenBalances, 1)
	assert.Equal(t, "1000", tx.Meta.PostTokenBalances[0].UITokenAmount.Value().String())

	require.Len(t, tx.Instructions, 3)
	assert.Empty(t, tx.Instructions[0].Type, "string payloads stay opaque")
	assert.Empty(t, tx.Instructions[1].Type, "unparsed instructions stay opaque")
	assert.Equal(t, "transfer", tx.Instructions[2].Type)
	assert.Equal(t, uint64(1000000000), tx.Instructions[2].Info.Lamports)

	inner := tx.Meta.InnerInstructions[0].Instructions[0]
	assert.Equal(t, "transferChecked", inner.Type)
	require.NotNil(t, inner.Info.TokenAmount)
	assert.Equal(t, "1000000000", inner.Info.TokenAmount.Amount)
}

func TestHTTPClient_GetParsedTransaction_NotFound(t *testing.T) {
	server := rpcServer(t, func(rpcRequest) interface{} { return nil })

	tx, err := NewHTTPClient(server.URL).GetParsedTransaction(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, tx)
}

func TestHTTPClient_GetSignaturesForAddress(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) interface{} {
		assert.Equal(t, "getSignaturesForAddress", req.Method)
		opts := req.Params[1].(map[string]interface{})
		assert.Equal(t, "sigOld", opts["until"])
		assert.Equal(t, float64(10), opts["limit"])
		assert.NotContains(t, opts, "before")

		blockTime := int64(1700000000)
		return []map[string]interface{}{
			{"signature": "sig2", "slot": int64(101), "blockTime": blockTime, "err": nil},
			{"signature": "sig1", "slot": int64(100), "blockTime": blockTime, "err": map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}},
		}
	})

	sigs, err := NewHTTPClient(server.URL).GetSignaturesForAddress(context.Background(), "addr",
		&SignaturesOpts{Until: "sigOld", Limit: 10})
	require.NoError(t, err)
	require.Len(t, sigs, 2)
	assert.Equal(t, "sig2", sigs[0].Signature)
	assert.Equal(t, int64(100), sigs[1].Slot)
	assert.NotNil(t, sigs[1].Err)
}

func TestHTTPClient_GetBalance(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) interface{} {
		assert.Equal(t, "getBalance", req.Method)
		return map[string]interface{}{"context": map[string]int{"slot": 1}, "value": uint64(1500000000)}
	})

	lamports, err := NewHTTPClient(server.URL).GetBalance(context.Background(), "Wallet1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1500000000), lamports)
	assert.Equal(t, "1.5", LamportsToBase(lamports).String())
}

func TestHTTPClient_GetTokenAccountsByOwner(t *testing.T) {
	var programs []string
	server := rpcServer(t, func(req rpcRequest) interface{} {
		assert.Equal(t, "getTokenAccountsByOwner", req.Method)
		filter := req.Params[1].(map[string]interface{})
		programs = append(programs, filter["programId"].(string))
		if filter["programId"] == Token2022ProgramID {
			return map[string]interface{}{"value": []interface{}{}}
		}
		return json.RawMessage(`{"value": [{"pubkey": "Ata1", "account": {"data": {"program": "spl-token",
			"parsed": {"type": "account", "info": {"mint": "MintA", "owner": "Wallet1",
			"tokenAmount": {"amount": "2500000", "decimals": 6}}}}}}]}`)
	})

	accounts, err := NewHTTPClient(server.URL).GetTokenAccountsByOwner(context.Background(), "Wallet1")
	require.NoError(t, err)
	assert.Equal(t, []string{TokenProgramID, Token2022ProgramID}, programs)
	require.Len(t, accounts, 1)
	assert.Equal(t, "Ata1", accounts[0].Pubkey)
	assert.Equal(t, "MintA", accounts[0].Mint)
	assert.Equal(t, "2.5", accounts[0].Value().String())
}

func TestHTTPClient_GetTokenAccount(t *testing.T) {
	mint := make([]byte, 32)
	owner := make([]byte, 32)
	mint[0], owner[0] = 1, 2
	data := make([]byte, tokenAccountLen)
	copy(data[0:32], mint)
	copy(data[32:64], owner)
	binary.LittleEndian.PutUint64(data[64:72], 42)

	server := rpcServer(t, func(req rpcRequest) interface{} {
		assert.Equal(t, "getAccountInfo", req.Method)
		return map[string]interface{}{
			"value": map[string]interface{}{
				"lamports": uint64(2039280),
				"owner":    TokenProgramID,
				"data":     []string{base64.StdEncoding.EncodeToString(data), "base64"},
			},
		}
	})

	acc, err := NewHTTPClient(server.URL).GetTokenAccount(context.Background(), "Ata1")
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, "Ata1", acc.Pubkey)
	assert.Equal(t, base58.Encode(mint), acc.Mint)
	assert.Equal(t, base58.Encode(owner), acc.Owner)
	assert.Equal(t, "42", acc.Amount)
	assert.Equal(t, "42", acc.Value().String())
}

func TestHTTPClient_GetAccountInfo_NotFound(t *testing.T) {
	server := rpcServer(t, func(rpcRequest) interface{} {
		return map[string]interface{}{"value": nil}
	})

	client := NewHTTPClient(server.URL)
	info, err := client.GetAccountInfo(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, info)

	acc, err := client.GetTokenAccount(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, acc)
}

func TestHTTPClient_GetSignatureStatuses(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) interface{} {
		assert.Equal(t, "getSignatureStatuses", req.Method)
		return json.RawMessage(`{"value": [
			{"slot": 10, "confirmations": null, "err": null, "confirmationStatus": "finalized"},
			null,
			{"slot": 11, "confirmations": 1, "err": {"InstructionError": [2, {"Custom": 6001}]}, "confirmationStatus": "processed"}
		]}`)
	})

	statuses, err := NewHTTPClient(server.URL).GetSignatureStatuses(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, statuses, 3)
	assert.True(t, statuses[0].Confirmed())
	assert.Nil(t, statuses[1])
	assert.False(t, statuses[2].Confirmed())
	assert.NotNil(t, statuses[2].Err)
}

func TestHTTPClient_Retry(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  map[string]interface{}{"value": uint64(999)},
		})
	}))
	defer server.Close()

	var observed []string
	client := NewHTTPClient(server.URL,
		WithMaxRetries(3),
		WithRetryDelay(10*time.Millisecond),
		WithObserver(func(method string, _ time.Duration, err error) {
			assert.NoError(t, err)
			observed = append(observed, method)
		}),
	)

	lamports, err := client.GetBalance(context.Background(), "Wallet1")
	require.NoError(t, err)
	assert.Equal(t, uint64(999), lamports)
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, []string{"getBalance"}, observed)
}

func TestHTTPClient_RateLimitedExhaustsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithMaxRetries(1), WithRetryDelay(time.Millisecond))
	_, err := client.GetBalance(context.Background(), "Wallet1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRateLimited))
}

func TestHTTPClient_RPCError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]interface{}{"code": -32600, "message": "Invalid Request"},
		})
	}))
	defer server.Close()

	_, err := NewHTTPClient(server.URL, WithRetryDelay(time.Millisecond)).GetBalance(context.Background(), "x")
	require.Error(t, err)

	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, -32600, rpcErr.Code)
	assert.Equal(t, int32(1), calls.Load(), "rpc errors are not retried")
}

func TestHTTPClient_WithRateLimit(t *testing.T) {
	server := rpcServer(t, func(rpcRequest) interface{} {
		return map[string]interface{}{"value": uint64(1)}
	})

	client := NewHTTPClient(server.URL, WithRateLimit(20, 1))
	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := client.GetBalance(context.Background(), "x")
		require.NoError(t, err)
	}
	// Three calls at 20 rps with burst 1 need at least two 50ms gaps.
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestHTTPClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTPClient(server.URL).GetBalance(ctx, "x")
	require.Error(t, err)
}
