package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"metaverse/core/state"
	"metaverse/crypto"
	metaverse "metaverse/native/metaverse"
	"metaverse/storage"
	statetrie "metaverse/storage/trie"
)

type rpcFixture struct {
	server *Server
	http   *httptest.Server
	engine *metaverse.Engine
	owner  [20]byte
}

func newRPCFixture(t *testing.T) *rpcFixture {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	tr, err := statetrie.NewTrie(db, nil)
	if err != nil {
		t.Fatalf("create trie: %v", err)
	}
	manager := state.NewManager(tr)

	var owner [20]byte
	owner[19] = 0x01
	var mvID [20]byte
	mvID[0] = 0x4D
	engine := metaverse.NewEngine(mvID, manager, metaverse.NewMemLedger(), metaverse.NewMemBrandRegistry())
	if err := engine.Bootstrap(owner); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	srv := NewServer(engine, time.Minute)
	srv.authToken = "test-token"
	ts := httptest.NewServer(http.HandlerFunc(srv.handle))
	t.Cleanup(ts.Close)
	return &rpcFixture{server: srv, http: ts, engine: engine, owner: owner}
}

func (f *rpcFixture) call(t *testing.T, token, method string, params interface{}) (*RPCResponse, int) {
	t.Helper()
	rawParams, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"id":      1,
		"method":  method,
		"params":  []json.RawMessage{rawParams},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, f.http.URL, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.http.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	decoded := &RPCResponse{}
	if err := json.NewDecoder(resp.Body).Decode(decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return decoded, resp.StatusCode
}

func bech(addr [20]byte) string {
	return crypto.MustNewAddress(crypto.MVPrefix, addr[:]).String()
}

func TestIsAllowedReportsOwnerSuperuser(t *testing.T) {
	f := newRPCFixture(t)

	resp, status := f.call(t, "", "mv_isAllowed", map[string]interface{}{
		"account":   bech(f.owner),
		"superuser": true,
	})
	if status != http.StatusOK || resp.Error != nil {
		t.Fatalf("status %d error %+v", status, resp.Error)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok || result["allowed"] != true {
		t.Fatalf("unexpected result %+v", resp.Result)
	}
}

func TestGrantAndQueryPermissionOverRPC(t *testing.T) {
	f := newRPCFixture(t)

	var account [20]byte
	account[19] = 0x20

	resp, status := f.call(t, "test-token", "mv_grant", map[string]interface{}{
		"caller":  bech(f.owner),
		"key":     "metaverse.deploy",
		"account": bech(account),
		"allow":   true,
	})
	if status != http.StatusOK || resp.Error != nil {
		t.Fatalf("grant: status %d error %+v", status, resp.Error)
	}

	resp, status = f.call(t, "", "mv_isAllowed", map[string]interface{}{
		"account": bech(account),
		"key":     "metaverse.deploy",
	})
	if status != http.StatusOK || resp.Error != nil {
		t.Fatalf("isAllowed: status %d error %+v", status, resp.Error)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok || result["allowed"] != true {
		t.Fatalf("granted key not reported: %+v", resp.Result)
	}

	// The superuser flag and a named key are mutually exclusive in one query.
	resp, status = f.call(t, "", "mv_isAllowed", map[string]interface{}{
		"account":   bech(account),
		"key":       "metaverse.deploy",
		"superuser": true,
	})
	if status != http.StatusBadRequest || resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("conflicting permission query accepted: status %d error %+v", status, resp.Error)
	}
}

func TestMutatingMethodsRequireBearerToken(t *testing.T) {
	f := newRPCFixture(t)

	var to [20]byte
	to[19] = 0xB0
	params := map[string]interface{}{"caller": bech(f.owner), "to": bech(to)}

	resp, status := f.call(t, "", "mv_mintBrand", params)
	if status != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", status)
	}
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("unexpected error %+v", resp.Error)
	}

	resp, status = f.call(t, "wrong-token", "mv_mintBrand", params)
	if status != http.StatusUnauthorized || resp.Error == nil {
		t.Fatalf("bad token accepted: status %d error %+v", status, resp.Error)
	}
}

func TestMintBrandOverRPC(t *testing.T) {
	f := newRPCFixture(t)

	var to [20]byte
	to[19] = 0xB0
	resp, status := f.call(t, "test-token", "mv_mintBrand", map[string]interface{}{
		"caller": bech(f.owner),
		"to":     bech(to),
	})
	if status != http.StatusOK || resp.Error != nil {
		t.Fatalf("status %d error %+v", status, resp.Error)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok || result["brandId"] == "" {
		t.Fatalf("unexpected result %+v", resp.Result)
	}

	// Minting the same brand twice fails.
	resp, _ = f.call(t, "test-token", "mv_mintBrand", map[string]interface{}{
		"caller": bech(f.owner),
		"to":     bech(to),
	})
	if resp.Error == nil {
		t.Fatalf("duplicate brand accepted")
	}
}

func TestMintBrandRejectsUnauthorizedCaller(t *testing.T) {
	f := newRPCFixture(t)

	var stranger, to [20]byte
	stranger[19] = 0x55
	to[19] = 0xB0
	resp, status := f.call(t, "test-token", "mv_mintBrand", map[string]interface{}{
		"caller": bech(stranger),
		"to":     bech(to),
	})
	if status != http.StatusForbidden {
		t.Fatalf("status %d, want 403", status)
	}
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("unexpected error %+v", resp.Error)
	}
}

func TestUnknownMethod(t *testing.T) {
	f := newRPCFixture(t)
	resp, status := f.call(t, "", "mv_doesNotExist", map[string]interface{}{})
	if status != http.StatusNotFound {
		t.Fatalf("status %d, want 404", status)
	}
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("unexpected error %+v", resp.Error)
	}
}

func TestInvalidAddressRejected(t *testing.T) {
	f := newRPCFixture(t)
	resp, status := f.call(t, "", "mv_isAllowed", map[string]interface{}{
		"account":   "not-an-address",
		"superuser": true,
	})
	if status != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", status)
	}
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("unexpected error %+v", resp.Error)
	}
}

func TestMetadataOfUnknownIDIsEmpty(t *testing.T) {
	f := newRPCFixture(t)
	resp, status := f.call(t, "", "mv_metadataOf", map[string]interface{}{
		"id": "0x10000000000000000000000000000000000000000000",
	})
	if status != http.StatusOK || resp.Error != nil {
		t.Fatalf("status %d error %+v", status, resp.Error)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected result %+v", resp.Result)
	}
	if result["metadata"] != "" {
		t.Fatalf("expected empty metadata, got %q", result["metadata"])
	}
}
