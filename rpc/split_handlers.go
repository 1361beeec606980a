package rpc

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strings"

	"paysplit/core"
	"paysplit/crypto"
	"paysplit/native/split"
)

func parseAddress(value string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, err
	}
	return addr.Array(), nil
}

func parseAmount(value string) (*big.Int, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, false
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, false
	}
	return amount, true
}

// decodeParams unmarshals the single parameter object required by a method.
func decodeParams(req *RPCRequest, out interface{}) (string, bool) {
	if len(req.Params) != 1 {
		return "parameter object required", false
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return "invalid parameter object: " + err.Error(), false
	}
	return "", true
}

// decodeOptionalParams unmarshals a parameter object when one is supplied.
func decodeOptionalParams(req *RPCRequest, out interface{}) (string, bool) {
	if len(req.Params) == 0 {
		return "", true
	}
	if len(req.Params) > 1 {
		return "too many parameters", false
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return "invalid parameter object: " + err.Error(), false
	}
	return "", true
}

type payeeResult struct {
	Address string `json:"address"`
	Shares  uint64 `json:"shares"`
}

type releaseResult struct {
	Asset         string `json:"asset"`
	Payments      int    `json:"payments"`
	TotalReleased string `json:"totalReleased"`
}

func releaseResultFrom(summary *core.ReleaseSummary) releaseResult {
	return releaseResult{
		Asset:         summary.Asset,
		Payments:      summary.Payments,
		TotalReleased: summary.Total.String(),
	}
}

func (s *Server) handleAddPayees(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Caller string   `json:"caller"`
		Payees []string `json:"payees"`
		Shares []uint64 `json:"shares"`
	}
	if msg, ok := decodeParams(req, &params); !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, msg, nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	if len(params.Payees) != len(params.Shares) {
		writeLedgerError(w, req.ID, split.ErrLengthMismatch)
		return
	}
	payees := make([]split.Payee, 0, len(params.Payees))
	for i, encoded := range params.Payees {
		addr, err := parseAddress(encoded)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payee address", err.Error())
			return
		}
		payees = append(payees, split.Payee{Address: addr, Shares: params.Shares[i]})
	}
	if err := s.node.AddPayees(caller, payees); err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	total, err := s.node.TotalShares()
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"payees":      len(payees),
		"totalShares": total,
	})
}

func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Caller string `json:"caller"`
	}
	if msg, ok := decodeParams(req, &params); !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, msg, nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	if err := s.node.Clear(caller); err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"cleared": true})
}

func (s *Server) handleRelease(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Caller  string `json:"caller"`
		Account string `json:"account"`
		Asset   string `json:"asset"`
	}
	if msg, ok := decodeParams(req, &params); !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, msg, nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	account, err := parseAddress(params.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid account address", err.Error())
		return
	}
	summary, err := s.node.Release(caller, account, params.Asset)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, releaseResultFrom(summary))
}

func (s *Server) handleReleaseMany(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Caller   string   `json:"caller"`
		Accounts []string `json:"accounts"`
		Asset    string   `json:"asset"`
	}
	if msg, ok := decodeParams(req, &params); !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, msg, nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	accounts := make([][20]byte, 0, len(params.Accounts))
	for _, encoded := range params.Accounts {
		addr, err := parseAddress(encoded)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid account address", err.Error())
			return
		}
		accounts = append(accounts, addr)
	}
	summary, err := s.node.ReleaseMany(caller, accounts, params.Asset)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, releaseResultFrom(summary))
}

func (s *Server) handleReleaseAll(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Caller string `json:"caller"`
		Asset  string `json:"asset"`
	}
	if msg, ok := decodeParams(req, &params); !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, msg, nil)
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return
	}
	summary, err := s.node.ReleaseAll(caller, params.Asset)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, releaseResultFrom(summary))
}

func (s *Server) handleDeposit(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		From   string `json:"from"`
		Asset  string `json:"asset"`
		Amount string `json:"amount"`
	}
	if msg, ok := decodeParams(req, &params); !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, msg, nil)
		return
	}
	var from [20]byte
	if strings.TrimSpace(params.From) != "" {
		parsed, err := parseAddress(params.From)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid sender address", err.Error())
			return
		}
		from = parsed
	}
	amount, ok := parseAmount(params.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "amount must be a base-10 integer string", params.Amount)
		return
	}
	receipt, err := s.node.Deposit(from, params.Asset, amount)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"receipt":       receipt.ID,
		"asset":         receipt.Asset,
		"amount":        receipt.Amount.String(),
		"vaultBalance":  receipt.VaultBalance.String(),
		"totalReceived": receipt.TotalReceived.String(),
		"receivedAt":    receipt.ReceivedAt,
	})
}

func (s *Server) handleReleasable(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Account string `json:"account"`
		Asset   string `json:"asset"`
	}
	if msg, ok := decodeParams(req, &params); !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, msg, nil)
		return
	}
	account, err := parseAddress(params.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid account address", err.Error())
		return
	}
	owed, err := s.node.Releasable(account, params.Asset)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"account": crypto.EncodeAddress(account),
		"asset":   normalizedOrNative(params.Asset),
		"amount":  owed.String(),
	})
}

func (s *Server) handleTotalShares(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	total, err := s.node.TotalShares()
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"totalShares": total})
}

func (s *Server) handleTotalReleased(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Asset string `json:"asset"`
	}
	if msg, ok := decodeOptionalParams(req, &params); !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, msg, nil)
		return
	}
	total, err := s.node.TotalReleased(params.Asset)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"asset":  normalizedOrNative(params.Asset),
		"amount": total.String(),
	})
}

func (s *Server) handleShares(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Account string `json:"account"`
	}
	if msg, ok := decodeParams(req, &params); !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, msg, nil)
		return
	}
	account, err := parseAddress(params.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid account address", err.Error())
		return
	}
	shares, err := s.node.Shares(account)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"shares": shares})
}

func (s *Server) handleReleased(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Account string `json:"account"`
		Asset   string `json:"asset"`
	}
	if msg, ok := decodeParams(req, &params); !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, msg, nil)
		return
	}
	account, err := parseAddress(params.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid account address", err.Error())
		return
	}
	released, err := s.node.Released(account, params.Asset)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"account": crypto.EncodeAddress(account),
		"asset":   normalizedOrNative(params.Asset),
		"amount":  released.String(),
	})
}

func (s *Server) handlePayee(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Index uint64 `json:"index"`
	}
	if msg, ok := decodeParams(req, &params); !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, msg, nil)
		return
	}
	payee, err := s.node.Payee(params.Index)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, payeeResult{
		Address: crypto.EncodeAddress(payee.Address),
		Shares:  payee.Shares,
	})
}

func (s *Server) handlePayees(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	payees, err := s.node.Payees()
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	results := make([]payeeResult, 0, len(payees))
	for _, payee := range payees {
		results = append(results, payeeResult{
			Address: crypto.EncodeAddress(payee.Address),
			Shares:  payee.Shares,
		})
	}
	writeResult(w, req.ID, results)
}

func (s *Server) handleAssets(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	assets, err := s.node.Assets()
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, assets)
}

func (s *Server) handleVaultBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Asset string `json:"asset"`
	}
	if msg, ok := decodeOptionalParams(req, &params); !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, msg, nil)
		return
	}
	balance, err := s.node.VaultBalance(params.Asset)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"asset":  normalizedOrNative(params.Asset),
		"amount": balance.String(),
	})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Account string `json:"account"`
		Asset   string `json:"asset"`
	}
	if msg, ok := decodeParams(req, &params); !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, msg, nil)
		return
	}
	account, err := parseAddress(params.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid account address", err.Error())
		return
	}
	balance, err := s.node.AccountBalance(account, params.Asset)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"account": crypto.EncodeAddress(account),
		"asset":   normalizedOrNative(params.Asset),
		"amount":  balance.String(),
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	info, err := s.node.Info()
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"operator":    info.Operator,
		"policy":      info.Policy,
		"paused":      info.Paused,
		"rosterSize":  info.RosterSize,
		"totalShares": info.TotalShares,
		"assets":      info.Assets,
		"journalHead": info.JournalHead,
	})
}

func normalizedOrNative(asset string) string {
	normalized, err := split.NormalizeAsset(asset)
	if err != nil {
		return strings.ToUpper(strings.TrimSpace(asset))
	}
	return normalized
}
