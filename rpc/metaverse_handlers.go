package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"metaverse/crypto"
	metaverse "metaverse/native/metaverse"
	"metaverse/token"
)

type allocateNFTTypeParams struct {
	Caller string `json:"caller"`
}

type allocateFTTypeParams struct {
	Caller string `json:"caller"`
	Brand  string `json:"brand,omitempty"`
}

type allocateNFTInstanceParams struct {
	Caller string `json:"caller"`
	TypeID string `json:"typeId"`
}

type mintFTParams struct {
	Caller     string `json:"caller"`
	To         string `json:"to"`
	ID         string `json:"id"`
	Amount     string `json:"amount"`
	Data       string `json:"data,omitempty"`
	Delegation string `json:"delegation,omitempty"`
}

type mintNFTParams struct {
	Caller     string `json:"caller"`
	To         string `json:"to"`
	TypeID     string `json:"typeId"`
	Data       string `json:"data,omitempty"`
	Delegation string `json:"delegation,omitempty"`
}

type mintBrandParams struct {
	Caller     string `json:"caller"`
	To         string `json:"to"`
	Data       string `json:"data,omitempty"`
	Delegation string `json:"delegation,omitempty"`
}

type burnTokenParams struct {
	Caller     string `json:"caller"`
	Owner      string `json:"owner"`
	ID         string `json:"id"`
	Amount     string `json:"amount"`
	Delegation string `json:"delegation,omitempty"`
}

type burnTokensParams struct {
	Caller     string   `json:"caller"`
	Owner      string   `json:"owner"`
	IDs        []string `json:"ids"`
	Amounts    []string `json:"amounts"`
	Delegation string   `json:"delegation,omitempty"`
}

type grantParams struct {
	Caller     string `json:"caller"`
	Brand      string `json:"brand,omitempty"`
	Key        string `json:"key,omitempty"`
	Superuser  bool   `json:"superuser,omitempty"`
	Account    string `json:"account"`
	Allow      bool   `json:"allow"`
	Delegation string `json:"delegation,omitempty"`
}

type registerTypeParams struct {
	Caller string `json:"caller"`
	ID     string `json:"id"`
	Module string `json:"module"`
}

type isAllowedParams struct {
	Brand     string `json:"brand,omitempty"`
	Key       string `json:"key,omitempty"`
	Superuser bool   `json:"superuser,omitempty"`
	Account   string `json:"account"`
}

type idParams struct {
	ID string `json:"id"`
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected a single params object, got %d", len(req.Params))
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseAddress(field, value string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid %s address: %w", field, err)
	}
	return addr.Array(), nil
}

func parseTokenID(field, value string) (*uint256.Int, error) {
	id, err := uint256.FromHex(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", field, err)
	}
	return id, nil
}

func parseAmount(field, value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok || amount.Sign() <= 0 {
		return nil, fmt.Errorf("invalid %s: expected a positive decimal string", field)
	}
	return amount, nil
}

func parseData(value string) ([]byte, error) {
	value = strings.TrimPrefix(strings.TrimSpace(value), "0x")
	if value == "" {
		return nil, nil
	}
	data, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid data payload: %w", err)
	}
	return data, nil
}

func encodeAddress(addr [20]byte) string {
	return crypto.MustNewAddress(crypto.MVPrefix, addr[:]).String()
}

// effectiveCaller resolves who an operation acts for: the submitter directly,
// or the signer of an attached delegation payload.
func (s *Server) effectiveCaller(submitter string, delegation string) ([20]byte, error) {
	caller, err := parseAddress("caller", submitter)
	if err != nil {
		return [20]byte{}, err
	}
	if strings.TrimSpace(delegation) == "" {
		return caller, nil
	}
	payload, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(delegation), "0x"))
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid delegation payload: %w", err)
	}
	effective, err := s.engine.EffectiveCaller(caller, payload, s.delegationTimeout, time.Now())
	if err != nil {
		s.metrics.ObserveDelegation("rejected")
		return [20]byte{}, err
	}
	s.metrics.ObserveDelegation("accepted")
	return effective, nil
}

func (s *Server) handleAllocateNFTType(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params allocateNFTTypeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, err := s.engine.AllocateNFTType(caller)
	if err != nil {
		s.engineError(w, req.ID, err)
		return
	}
	s.metrics.ObserveTypeAllocated("nft")
	writeResult(w, req.ID, map[string]string{"typeId": id.Hex()})
}

func (s *Server) handleAllocateFTType(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params allocateFTTypeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	var scope [20]byte
	if strings.TrimSpace(params.Brand) != "" {
		if scope, err = parseAddress("brand", params.Brand); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return
		}
	}
	id, err := s.engine.AllocateFTType(caller, scope)
	if err != nil {
		s.engineError(w, req.ID, err)
		return
	}
	s.metrics.ObserveTypeAllocated("ft")
	writeResult(w, req.ID, map[string]string{"id": id.Hex()})
}

func (s *Server) handleAllocateNFTInstance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params allocateNFTInstanceParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	typeID, err := parseTokenID("typeId", params.TypeID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, err := s.engine.AllocateNFTInstance(caller, typeID)
	if err != nil {
		s.engineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"instanceId": id.Hex()})
}

func (s *Server) handleMintFT(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params mintFTParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := s.effectiveCaller(params.Caller, params.Delegation)
	if err != nil {
		s.engineError(w, req.ID, err)
		return
	}
	to, err := parseAddress("to", params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, err := parseTokenID("id", params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	data, err := parseData(params.Data)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.engine.MintFT(caller, to, id, amount, data); err != nil {
		s.engineError(w, req.ID, err)
		return
	}
	s.metrics.ObserveMint("ft")
	writeResult(w, req.ID, map[string]string{"status": "minted"})
}

func (s *Server) handleMintNFT(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params mintNFTParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := s.effectiveCaller(params.Caller, params.Delegation)
	if err != nil {
		s.engineError(w, req.ID, err)
		return
	}
	to, err := parseAddress("to", params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	typeID, err := parseTokenID("typeId", params.TypeID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	data, err := parseData(params.Data)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	instance, err := s.engine.MintNFT(caller, to, typeID, data)
	if err != nil {
		s.engineError(w, req.ID, err)
		return
	}
	s.metrics.ObserveMint("nft")
	writeResult(w, req.ID, map[string]string{"instanceId": instance.Hex()})
}

func (s *Server) handleMintBrand(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params mintBrandParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := s.effectiveCaller(params.Caller, params.Delegation)
	if err != nil {
		s.engineError(w, req.ID, err)
		return
	}
	to, err := parseAddress("to", params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	data, err := parseData(params.Data)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, err := s.engine.MintBrand(caller, to, data)
	if err != nil {
		s.engineError(w, req.ID, err)
		return
	}
	s.metrics.ObserveMint("brand")
	writeResult(w, req.ID, map[string]string{"brandId": id.Hex()})
}

func (s *Server) handleBurnToken(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params burnTokenParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := s.effectiveCaller(params.Caller, params.Delegation)
	if err != nil {
		s.engineError(w, req.ID, err)
		return
	}
	owner, err := parseAddress("owner", params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, err := parseTokenID("id", params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.engine.BurnToken(caller, owner, id, amount); err != nil {
		s.engineError(w, req.ID, err)
		return
	}
	s.metrics.ObserveBurn()
	writeResult(w, req.ID, map[string]string{"status": "burned"})
}

func (s *Server) handleBurnTokens(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params burnTokensParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := s.effectiveCaller(params.Caller, params.Delegation)
	if err != nil {
		s.engineError(w, req.ID, err)
		return
	}
	owner, err := parseAddress("owner", params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	ids := make([]*uint256.Int, 0, len(params.IDs))
	for _, raw := range params.IDs {
		id, err := parseTokenID("ids", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return
		}
		ids = append(ids, id)
	}
	amounts := make([]*big.Int, 0, len(params.Amounts))
	for _, raw := range params.Amounts {
		amount, err := parseAmount("amounts", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return
		}
		amounts = append(amounts, amount)
	}
	if err := s.engine.BurnTokens(caller, owner, ids, amounts); err != nil {
		s.engineError(w, req.ID, err)
		return
	}
	s.metrics.ObserveBurn()
	writeResult(w, req.ID, map[string]string{"status": "burned"})
}

func parseScope(brand string) (scope metaverse.Scope, err error) {
	if strings.TrimSpace(brand) == "" {
		return metaverse.SystemScope(), nil
	}
	addr, err := parseAddress("brand", brand)
	if err != nil {
		return metaverse.Scope{}, err
	}
	return metaverse.BrandScope(addr), nil
}

func parsePermission(key string, superuser bool) (metaverse.Permission, error) {
	if superuser {
		if strings.TrimSpace(key) != "" {
			return metaverse.Permission{}, fmt.Errorf("superuser and key are mutually exclusive")
		}
		return metaverse.Superuser, nil
	}
	if strings.TrimSpace(key) == "" {
		return metaverse.Permission{}, fmt.Errorf("permission key required")
	}
	return metaverse.Named(key), nil
}

func (s *Server) handleGrant(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params grantParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := s.effectiveCaller(params.Caller, params.Delegation)
	if err != nil {
		s.engineError(w, req.ID, err)
		return
	}
	account, err := parseAddress("account", params.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	scope, err := parseScope(params.Brand)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	permission, err := parsePermission(params.Key, params.Superuser)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.engine.Grant(caller, scope, permission, account, params.Allow); err != nil {
		s.engineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"allowed": params.Allow})
}

func (s *Server) handleRegisterType(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params registerTypeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, err := parseTokenID("id", params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	module, err := parseAddress("module", params.Module)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.engine.RegisterType(caller, id, module); err != nil {
		s.engineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"status": "registered"})
}

func (s *Server) handleIsAllowed(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params isAllowedParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	account, err := parseAddress("account", params.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	scope, err := parseScope(params.Brand)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	permission, err := parsePermission(params.Key, params.Superuser)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, map[string]bool{"allowed": s.engine.IsAllowed(scope, permission, account)})
}

func (s *Server) handleResolverOf(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params idParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, err := parseTokenID("id", params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	resolver, ok, err := s.engine.ResolverOf(id)
	if err != nil {
		s.engineError(w, req.ID, err)
		return
	}
	result := map[string]interface{}{"registered": ok}
	if ok {
		result["resolver"] = encodeAddress(resolver)
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleMetadataOf(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params idParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	id, err := parseTokenID("id", params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	metadata, err := s.engine.MetadataOf(id)
	if err != nil {
		s.engineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"id":       id.Hex(),
		"brand":    token.IsBrand(id),
		"fungible": token.IsFT(id),
		"metadata": string(metadata),
	})
}
