package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finbooks/ledger/internal/identity"
	"github.com/finbooks/ledger/internal/interfaces"
	"github.com/finbooks/ledger/internal/ledger"
	"github.com/finbooks/ledger/internal/models"
)

type handler struct {
	svc *ledger.Service
}

// newHandler builds the HTTP front for the core's read/write API. Request
// and response shapes live here; the core only sees its own types.
func newHandler(svc *ledger.Service) http.Handler {
	h := &handler{svc: svc}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("POST /ledgers", h.createLedger)
	mux.HandleFunc("GET /ledgers/{ledgerID}", h.getLedger)
	mux.HandleFunc("PUT /ledgers/{ledgerID}/lock-date", h.setLockDate)

	mux.HandleFunc("POST /ledgers/{ledgerID}/commodities", h.registerCommodity)
	mux.HandleFunc("GET /ledgers/{ledgerID}/commodities", h.listCommodities)
	mux.HandleFunc("GET /ledgers/{ledgerID}/commodities/{code}", h.getCommodity)
	mux.HandleFunc("PATCH /ledgers/{ledgerID}/commodities/{code}", h.updateCommodity)

	mux.HandleFunc("POST /ledgers/{ledgerID}/accounts", h.createAccount)
	mux.HandleFunc("GET /ledgers/{ledgerID}/accounts", h.listAccounts)
	mux.HandleFunc("GET /ledgers/{ledgerID}/accounts/resolve", h.resolveAccount)
	mux.HandleFunc("GET /ledgers/{ledgerID}/accounts/{accountID}", h.getAccount)
	mux.HandleFunc("PATCH /ledgers/{ledgerID}/accounts/{accountID}", h.updateAccount)
	mux.HandleFunc("GET /ledgers/{ledgerID}/accounts/{accountID}/balance", h.balance)
	mux.HandleFunc("GET /ledgers/{ledgerID}/accounts/{accountID}/subtree-balance", h.subtreeBalance)
	mux.HandleFunc("GET /ledgers/{ledgerID}/accounts/{accountID}/balances", h.accountBalances)

	mux.HandleFunc("POST /ledgers/{ledgerID}/transactions", h.commitTransaction)
	mux.HandleFunc("GET /ledgers/{ledgerID}/transactions", h.listTransactions)
	mux.HandleFunc("GET /ledgers/{ledgerID}/transactions/{transactionID}", h.getTransaction)
	mux.HandleFunc("POST /ledgers/{ledgerID}/transactions/{transactionID}/reverse", h.reverseTransaction)

	return principalMiddleware(mux)
}

// principalMiddleware resolves the acting principal from the request and
// attaches it to the context for audit metadata. Authentication proper
// is expected in front of this service.
func principalMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if principal := r.Header.Get("X-Principal"); principal != "" {
			r = r.WithContext(identity.WithPrincipal(r.Context(), principal))
		}

		next.ServeHTTP(w, r)
	})
}

func (h *handler) createLedger(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name             string `json:"name"`
		Description      string `json:"description"`
		DefaultCommodity string `json:"default_commodity"`
	}

	if !decode(w, r, &req) {
		return
	}

	l, err := h.svc.CreateLedger(r.Context(), req.Name, req.Description, req.DefaultCommodity)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, ledgerResponse(l))
}

func (h *handler) getLedger(w http.ResponseWriter, r *http.Request) {
	l, err := h.svc.GetLedger(r.Context(), r.PathValue("ledgerID"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ledgerResponse(l))
}

func (h *handler) setLockDate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LockDate time.Time `json:"lock_date"`
	}

	if !decode(w, r, &req) {
		return
	}

	l, err := h.svc.SetLockDate(r.Context(), r.PathValue("ledgerID"), req.LockDate)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ledgerResponse(l))
}

func (h *handler) registerCommodity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code   string `json:"code"`
		Name   string `json:"name"`
		Symbol string `json:"symbol"`
		Scale  int32  `json:"scale"`
	}

	if !decode(w, r, &req) {
		return
	}

	c, err := h.svc.RegisterCommodity(r.Context(), r.PathValue("ledgerID"), req.Code, req.Name, req.Symbol, req.Scale)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, commodityResponse(c))
}

func (h *handler) listCommodities(w http.ResponseWriter, r *http.Request) {
	commodities, err := h.svc.ListCommodities(r.Context(), r.PathValue("ledgerID"))
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(commodities))
	for _, c := range commodities {
		out = append(out, commodityResponse(c))
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *handler) getCommodity(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.GetCommodity(r.Context(), r.PathValue("ledgerID"), r.PathValue("code"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, commodityResponse(c))
}

func (h *handler) updateCommodity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string `json:"name"`
		Symbol string `json:"symbol"`
	}

	if !decode(w, r, &req) {
		return
	}

	c, err := h.svc.UpdateCommodityDisplay(r.Context(), r.PathValue("ledgerID"), r.PathValue("code"), req.Name, req.Symbol)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, commodityResponse(c))
}

func (h *handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ParentID  string `json:"parent_id"`
		Name      string `json:"name"`
		Role      string `json:"role"`
		Commodity string `json:"commodity"`
	}

	if !decode(w, r, &req) {
		return
	}

	a, err := h.svc.CreateAccount(r.Context(), r.PathValue("ledgerID"), req.ParentID, req.Name, models.Role(req.Role), req.Commodity)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, accountResponse(a))
}

func (h *handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.svc.ListAccounts(r.Context(), r.PathValue("ledgerID"))
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, accountResponse(a))
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *handler) getAccount(w http.ResponseWriter, r *http.Request) {
	ledgerID := r.PathValue("ledgerID")
	accountID := r.PathValue("accountID")

	a, err := h.svc.GetAccount(r.Context(), ledgerID, accountID)
	if err != nil {
		writeError(w, err)
		return
	}

	path, err := h.svc.AccountPath(r.Context(), ledgerID, accountID)
	if err != nil {
		writeError(w, err)
		return
	}

	out := accountResponse(a)
	out["path"] = path

	writeJSON(w, http.StatusOK, out)
}

// updateAccount applies any combination of rename, reparent, and retype.
// Each sub-update is validated independently.
func (h *handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      *string `json:"name"`
		ParentID  *string `json:"parent_id"`
		Role      *string `json:"role"`
		Commodity *string `json:"commodity"`
	}

	if !decode(w, r, &req) {
		return
	}

	ledgerID := r.PathValue("ledgerID")
	accountID := r.PathValue("accountID")

	a, err := h.svc.GetAccount(r.Context(), ledgerID, accountID)
	if err != nil {
		writeError(w, err)
		return
	}

	if req.Name != nil {
		if a, err = h.svc.RenameAccount(r.Context(), ledgerID, accountID, *req.Name); err != nil {
			writeError(w, err)
			return
		}
	}

	if req.ParentID != nil {
		if a, err = h.svc.ReparentAccount(r.Context(), ledgerID, accountID, *req.ParentID); err != nil {
			writeError(w, err)
			return
		}
	}

	if req.Role != nil || req.Commodity != nil {
		role := a.Role
		if req.Role != nil {
			role = models.Role(*req.Role)
		}

		commodity := a.Commodity
		if req.Commodity != nil {
			commodity = *req.Commodity
		}

		if a, err = h.svc.RetypeAccount(r.Context(), ledgerID, accountID, role, commodity); err != nil {
			writeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, accountResponse(a))
}

func (h *handler) resolveAccount(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.ResolveAccount(r.Context(), r.PathValue("ledgerID"), r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, accountResponse(a))
}

func (h *handler) commitTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Description string    `json:"description"`
		Timestamp   time.Time `json:"timestamp"`
		Postings    []struct {
			AccountID   string `json:"account_id"`
			Commodity   string `json:"commodity"`
			Amount      int64  `json:"amount"`
			AmountMajor string `json:"amount_major"`
			Memo        string `json:"memo"`
		} `json:"postings"`
	}

	if !decode(w, r, &req) {
		return
	}

	postings := make([]ledger.PostingInput, len(req.Postings))
	for i, p := range req.Postings {
		amount := p.Amount

		// Amounts arrive either as minor units or as a major-unit
		// decimal string scaled through the commodity registry.
		if p.AmountMajor != "" {
			if p.Amount != 0 {
				writeError(w, models.NewError(models.CodeInvalidInput, "postings", "specify amount or amount_major, not both"))
				return
			}

			c, err := h.svc.GetCommodity(r.Context(), r.PathValue("ledgerID"), p.Commodity)
			if err != nil {
				writeError(w, err)
				return
			}

			major, err := decimal.NewFromString(p.AmountMajor)
			if err != nil {
				writeError(w, models.NewError(models.CodeInvalidInput, "postings", "amount_major must be a decimal number"))
				return
			}

			if amount, err = c.MinorUnits(major); err != nil {
				writeError(w, err)
				return
			}
		}

		postings[i] = ledger.PostingInput{
			AccountID: p.AccountID,
			Commodity: p.Commodity,
			Amount:    amount,
			Memo:      p.Memo,
		}
	}

	tx, err := h.svc.Commit(r.Context(), r.PathValue("ledgerID"), req.Description, req.Timestamp, postings)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, transactionResponse(tx))
}

func (h *handler) reverseTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.svc.Reverse(r.Context(), r.PathValue("ledgerID"), r.PathValue("transactionID"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, transactionResponse(tx))
}

func (h *handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.svc.GetTransaction(r.Context(), r.PathValue("ledgerID"), r.PathValue("transactionID"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, transactionResponse(tx))
}

func (h *handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := interfaces.TransactionFilter{
		AccountID: q.Get("account_id"),
		Sign:      q.Get("sign"),
		Ascending: q.Get("order") == "asc",
	}

	if v := q.Get("after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, models.NewError(models.CodeInvalidInput, "after", "after must be RFC 3339"))
			return
		}

		filter.After = &t
	}

	if v := q.Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, models.NewError(models.CodeInvalidInput, "before", "before must be RFC 3339"))
			return
		}

		filter.Before = &t
	}

	filter.Limit = intQuery(q.Get("limit"), 20)
	filter.Offset = intQuery(q.Get("offset"), 0)

	transactions, err := h.svc.ListTransactions(r.Context(), r.PathValue("ledgerID"), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(transactions))
	for _, tx := range transactions {
		out = append(out, transactionResponse(tx))
	}

	writeJSON(w, http.StatusOK, out)
}

func (h *handler) balance(w http.ResponseWriter, r *http.Request) {
	ledgerID := r.PathValue("ledgerID")
	accountID := r.PathValue("accountID")
	commodity := r.URL.Query().Get("commodity")

	asOf, ok := asOfQuery(w, r)
	if !ok {
		return
	}

	var (
		amount int64
		err    error
	)

	if asOf == nil {
		amount, err = h.svc.CurrentBalance(r.Context(), ledgerID, accountID, commodity)
	} else {
		amount, err = h.svc.BalanceAsOf(r.Context(), ledgerID, accountID, commodity, *asOf)
	}

	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]any{
		"account_id": accountID,
		"commodity":  commodity,
		"amount":     amount,
	}
	h.addMajorUnits(r, resp, ledgerID, commodity, amount)

	writeJSON(w, http.StatusOK, resp)
}

// addMajorUnits renders the amount in major units of the commodity when
// it is registered; unregistered codes stay minor-units only.
func (h *handler) addMajorUnits(r *http.Request, resp map[string]any, ledgerID, commodity string, amount int64) {
	c, err := h.svc.GetCommodity(r.Context(), ledgerID, commodity)
	if err != nil {
		return
	}

	resp["amount_major"] = c.MajorUnits(amount).String()
}

func (h *handler) subtreeBalance(w http.ResponseWriter, r *http.Request) {
	asOf, ok := asOfQuery(w, r)
	if !ok {
		return
	}

	at := time.Now().UTC()
	if asOf != nil {
		at = *asOf
	}

	amount, err := h.svc.SubtreeBalance(r.Context(), r.PathValue("ledgerID"), r.PathValue("accountID"), r.URL.Query().Get("commodity"), at)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]any{
		"account_id": r.PathValue("accountID"),
		"commodity":  r.URL.Query().Get("commodity"),
		"as_of":      at,
		"amount":     amount,
	}
	h.addMajorUnits(r, resp, r.PathValue("ledgerID"), r.URL.Query().Get("commodity"), amount)

	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) accountBalances(w http.ResponseWriter, r *http.Request) {
	asOf, ok := asOfQuery(w, r)
	if !ok {
		return
	}

	at := time.Now().UTC()
	if asOf != nil {
		at = *asOf
	}

	balances, err := h.svc.AccountBalances(r.Context(), r.PathValue("ledgerID"), r.PathValue("accountID"), at)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(balances))
	for _, b := range balances {
		entry := map[string]any{
			"commodity": b.Commodity,
			"amount":    b.Amount,
			"as_of":     b.AsOf,
		}
		h.addMajorUnits(r, entry, r.PathValue("ledgerID"), b.Commodity, b.Amount)

		out = append(out, entry)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account_id": r.PathValue("accountID"),
		"balances":   out,
	})
}

func ledgerResponse(l models.Ledger) map[string]any {
	out := map[string]any{
		"id":                l.ID,
		"name":              l.Name,
		"description":       l.Description,
		"default_commodity": l.DefaultCommodity,
		"created_at":        l.CreatedAt,
		"updated_at":        l.UpdatedAt,
	}

	if l.LockDate != nil {
		out["lock_date"] = *l.LockDate
	}

	return out
}

func commodityResponse(c models.Commodity) map[string]any {
	return map[string]any{
		"code":       c.Code,
		"name":       c.Name,
		"symbol":     c.Symbol,
		"scale":      c.Scale,
		"created_at": c.CreatedAt,
	}
}

func accountResponse(a models.Account) map[string]any {
	return map[string]any{
		"id":         a.ID,
		"ledger_id":  a.LedgerID,
		"parent_id":  a.ParentID,
		"name":       a.Name,
		"role":       string(a.Role),
		"commodity":  a.Commodity,
		"created_at": a.CreatedAt,
	}
}

func transactionResponse(tx models.Transaction) map[string]any {
	postings := make([]map[string]any, len(tx.Postings))
	for i, p := range tx.Postings {
		postings[i] = map[string]any{
			"account_id": p.AccountID,
			"commodity":  p.Commodity,
			"amount":     p.Amount,
			"memo":       p.Memo,
		}
	}

	out := map[string]any{
		"id":          tx.ID,
		"ledger_id":   tx.LedgerID,
		"timestamp":   tx.Timestamp,
		"description": tx.Description,
		"postings":    postings,
		"created_by":  tx.CreatedBy,
		"created_at":  tx.CreatedAt,
	}

	if tx.Reverses != "" {
		out["reverses"] = tx.Reverses
	}

	if tx.ReversedBy != "" {
		out["reversed_by"] = tx.ReversedBy
	}

	return out
}

func decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		writeError(w, models.NewError(models.CodeInvalidInput, "body", "invalid request body"))
		return false
	}

	return true
}

func asOfQuery(w http.ResponseWriter, r *http.Request) (*time.Time, bool) {
	v := r.URL.Query().Get("as_of")
	if v == "" {
		return nil, true
	}

	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		writeError(w, models.NewError(models.CodeInvalidInput, "as_of", "as_of must be RFC 3339"))
		return nil, false
	}

	return &t, true
}

func intQuery(v string, fallback int) int {
	if v == "" {
		return fallback
	}

	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}

	return n
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps domain error codes onto HTTP statuses so clients never
// have to string-match messages.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var domainErr models.Error
	if errors.As(err, &domainErr) {
		switch domainErr.Code {
		case models.CodeEmptyTransaction, models.CodeUnbalancedTransaction,
			models.CodeCommodityMismatch, models.CodeInvalidInput:
			status = http.StatusBadRequest
		case models.CodeLedgerNotFound, models.CodeAccountNotFound,
			models.CodeUnknownCommodity, models.CodeTransactionNotFound:
			status = http.StatusNotFound
		case models.CodeDuplicateCommodity, models.CodeDuplicateName,
			models.CodeCommodityLocked, models.CodeAccountLocked,
			models.CodeInvalidParent, models.CodeAlreadyReversed,
			models.CodePeriodClosed:
			status = http.StatusConflict
		case models.CodeWriteConflict:
			status = http.StatusServiceUnavailable
		}

		writeJSON(w, status, map[string]any{
			"code":        string(domainErr.Code),
			"detail":      domainErr.Error(),
			"status_code": status,
		})

		return
	}

	writeJSON(w, status, map[string]any{
		"detail":      "server error",
		"status_code": status,
	})
}
