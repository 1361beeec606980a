package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"paysplit/core"
	"paysplit/crypto"
	"paysplit/storage"
)

const testToken = "secret-operator-token"

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

var testOperator = newTestAddress(0x01)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	node, err := core.NewNode(storage.NewMemDB(), testOperator)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	server := NewServer(node)
	server.SetAuthToken(testToken)
	return server
}

type callOptions struct {
	token string
}

func rpcCall(t *testing.T, server *Server, method string, params interface{}, opts callOptions) (*httptest.ResponseRecorder, RPCResponse) {
	t.Helper()
	request := map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"method":  method,
		"id":      1,
	}
	if params != nil {
		request["params"] = []interface{}{params}
	}
	payload, err := json.Marshal(request)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(payload))
	req.RemoteAddr = "127.0.0.1:4000"
	if opts.token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.token)
	}
	recorder := httptest.NewRecorder()
	server.handle(recorder, req)

	var resp RPCResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v (%s)", err, recorder.Body.String())
	}
	return recorder, resp
}

func resultMap(t *testing.T, resp RPCResponse) map[string]interface{} {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("expected object result, got %T", resp.Result)
	}
	return result
}

func installTestRoster(t *testing.T, server *Server, payees []string, shares []uint64) {
	t.Helper()
	_, resp := rpcCall(t, server, "split_addPayees", map[string]interface{}{
		"caller": crypto.EncodeAddress(testOperator),
		"payees": payees,
		"shares": shares,
	}, callOptions{token: testToken})
	if resp.Error != nil {
		t.Fatalf("add payees: %+v", resp.Error)
	}
}

func TestHandleRejectsEmptyBody(t *testing.T) {
	server := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(nil))
	recorder := httptest.NewRecorder()
	server.handle(recorder, req)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	var resp RPCResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != codeInvalidRequest {
		t.Fatalf("expected invalid request error, got %+v", resp.Error)
	}
}

func TestHandleUnknownMethod(t *testing.T) {
	server := newTestServer(t)
	recorder, resp := rpcCall(t, server, "split_bogus", nil, callOptions{})
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method not found, got %+v", resp.Error)
	}
}

func TestOperatorMethodsRequireBearerToken(t *testing.T) {
	server := newTestServer(t)
	params := map[string]interface{}{
		"caller": crypto.EncodeAddress(testOperator),
		"payees": []string{crypto.EncodeAddress(newTestAddress(0xA1))},
		"shares": []uint64{1},
	}

	recorder, resp := rpcCall(t, server, "split_addPayees", params, callOptions{})
	if recorder.Code != http.StatusUnauthorized || resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized without token, got %d %+v", recorder.Code, resp.Error)
	}

	recorder, resp = rpcCall(t, server, "split_addPayees", params, callOptions{token: "wrong"})
	if recorder.Code != http.StatusUnauthorized || resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized with bad token, got %d %+v", recorder.Code, resp.Error)
	}

	_, resp = rpcCall(t, server, "split_addPayees", params, callOptions{token: testToken})
	if resp.Error != nil {
		t.Fatalf("expected success with valid token, got %+v", resp.Error)
	}
}

func TestOperatorAddressIsChecked(t *testing.T) {
	server := newTestServer(t)
	recorder, resp := rpcCall(t, server, "split_addPayees", map[string]interface{}{
		"caller": crypto.EncodeAddress(newTestAddress(0x99)),
		"payees": []string{crypto.EncodeAddress(newTestAddress(0xA1))},
		"shares": []uint64{1},
	}, callOptions{token: testToken})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong operator, got %d", recorder.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized error, got %+v", resp.Error)
	}
}

func TestAddPayeesLengthMismatch(t *testing.T) {
	server := newTestServer(t)
	recorder, resp := rpcCall(t, server, "split_addPayees", map[string]interface{}{
		"caller": crypto.EncodeAddress(testOperator),
		"payees": []string{crypto.EncodeAddress(newTestAddress(0xA1))},
		"shares": []uint64{1, 2},
	}, callOptions{token: testToken})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid params, got %+v", resp.Error)
	}
}

func TestDepositReleaseQueryFlow(t *testing.T) {
	server := newTestServer(t)
	alice := crypto.EncodeAddress(newTestAddress(0xA1))
	bob := crypto.EncodeAddress(newTestAddress(0xB2))
	installTestRoster(t, server, []string{alice, bob}, []uint64{3, 1})

	_, resp := rpcCall(t, server, "split_deposit", map[string]interface{}{
		"asset":  "usdx",
		"amount": "100",
	}, callOptions{})
	deposit := resultMap(t, resp)
	if deposit["asset"] != "USDX" || deposit["amount"] != "100" {
		t.Fatalf("unexpected deposit result: %v", deposit)
	}
	if deposit["receipt"] == "" {
		t.Fatalf("expected receipt id")
	}

	_, resp = rpcCall(t, server, "split_releasable", map[string]interface{}{
		"account": alice,
		"asset":   "USDX",
	}, callOptions{})
	releasable := resultMap(t, resp)
	if releasable["amount"] != "75" {
		t.Fatalf("expected alice owed 75, got %v", releasable)
	}

	_, resp = rpcCall(t, server, "split_release", map[string]interface{}{
		"caller":  crypto.EncodeAddress(testOperator),
		"account": alice,
		"asset":   "USDX",
	}, callOptions{token: testToken})
	if resp.Error != nil {
		t.Fatalf("release: %+v", resp.Error)
	}

	_, resp = rpcCall(t, server, "split_getBalance", map[string]interface{}{
		"account": alice,
		"asset":   "USDX",
	}, callOptions{})
	balance := resultMap(t, resp)
	if balance["amount"] != "75" {
		t.Fatalf("expected settled balance 75, got %v", balance)
	}

	_, resp = rpcCall(t, server, "split_vaultBalance", map[string]interface{}{
		"asset": "USDX",
	}, callOptions{})
	vault := resultMap(t, resp)
	if vault["amount"] != "25" {
		t.Fatalf("expected vault 25, got %v", vault)
	}

	_, resp = rpcCall(t, server, "split_assets", nil, callOptions{})
	if resp.Error != nil {
		t.Fatalf("assets: %+v", resp.Error)
	}
	assets, ok := resp.Result.([]interface{})
	if !ok || len(assets) != 1 || assets[0] != "USDX" {
		t.Fatalf("expected [USDX], got %v", resp.Result)
	}
}

func TestReleaseAllSummary(t *testing.T) {
	server := newTestServer(t)
	alice := crypto.EncodeAddress(newTestAddress(0xA1))
	bob := crypto.EncodeAddress(newTestAddress(0xB2))
	installTestRoster(t, server, []string{alice, bob}, []uint64{1, 1})

	if _, resp := rpcCall(t, server, "split_deposit", map[string]interface{}{
		"amount": "10",
	}, callOptions{}); resp.Error != nil {
		t.Fatalf("deposit: %+v", resp.Error)
	}

	_, resp := rpcCall(t, server, "split_releaseAll", map[string]interface{}{
		"caller": crypto.EncodeAddress(testOperator),
	}, callOptions{token: testToken})
	summary := resultMap(t, resp)
	if summary["payments"] != float64(2) || summary["totalReleased"] != "10" {
		t.Fatalf("unexpected summary: %v", summary)
	}
	if summary["asset"] != "PAY" {
		t.Fatalf("expected native asset, got %v", summary["asset"])
	}
}

func TestReleaseNothingDueMapsToConflict(t *testing.T) {
	server := newTestServer(t)
	alice := crypto.EncodeAddress(newTestAddress(0xA1))
	installTestRoster(t, server, []string{alice}, []uint64{1})

	recorder, resp := rpcCall(t, server, "split_release", map[string]interface{}{
		"caller":  crypto.EncodeAddress(testOperator),
		"account": alice,
	}, callOptions{token: testToken})
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", recorder.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeNothingDue {
		t.Fatalf("expected nothing-due error, got %+v", resp.Error)
	}
}

func TestInvalidDepositAmounts(t *testing.T) {
	server := newTestServer(t)
	for _, amount := range []string{"", "abc", "12.5"} {
		recorder, resp := rpcCall(t, server, "split_deposit", map[string]interface{}{
			"amount": amount,
		}, callOptions{})
		if recorder.Code != http.StatusBadRequest || resp.Error == nil || resp.Error.Code != codeInvalidParams {
			t.Fatalf("amount %q: expected invalid params, got %d %+v", amount, recorder.Code, resp.Error)
		}
	}

	recorder, resp := rpcCall(t, server, "split_deposit", map[string]interface{}{
		"amount": "-5",
	}, callOptions{})
	if recorder.Code != http.StatusBadRequest || resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected rejection of negative amount, got %d %+v", recorder.Code, resp.Error)
	}
}

func TestDepositRateLimiterThrottlesPerSource(t *testing.T) {
	server := newTestServer(t)
	allowed := 0
	for i := 0; i < depositBurst*2; i++ {
		if server.allowDeposit("203.0.113.9") {
			allowed++
		}
	}
	if allowed != depositBurst {
		t.Fatalf("expected %d allowed in burst, got %d", depositBurst, allowed)
	}
	// A different source has its own budget.
	if !server.allowDeposit("203.0.113.10") {
		t.Fatalf("expected fresh source to be allowed")
	}
}

func TestForeignAddressPrefixRejected(t *testing.T) {
	server := newTestServer(t)
	recorder, resp := rpcCall(t, server, "split_shares", map[string]interface{}{
		"account": "btc1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq",
	}, callOptions{})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for foreign prefix, got %d", recorder.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid params, got %+v", resp.Error)
	}
}

func TestInfoEndpoint(t *testing.T) {
	server := newTestServer(t)
	alice := crypto.EncodeAddress(newTestAddress(0xA1))
	installTestRoster(t, server, []string{alice}, []uint64{5})

	_, resp := rpcCall(t, server, "split_info", nil, callOptions{})
	info := resultMap(t, resp)
	if info["totalShares"] != float64(5) || info["rosterSize"] != float64(1) {
		t.Fatalf("unexpected info: %v", info)
	}
	if info["operator"] != crypto.EncodeAddress(testOperator) {
		t.Fatalf("unexpected operator: %v", info["operator"])
	}
	if info["policy"] != "strict" || info["paused"] != false {
		t.Fatalf("unexpected policy/pause: %v", info)
	}
}

func TestPayeeIndexOutOfRange(t *testing.T) {
	server := newTestServer(t)
	recorder, resp := rpcCall(t, server, "split_payee", map[string]interface{}{
		"index": 3,
	}, callOptions{})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid params, got %+v", resp.Error)
	}
}
