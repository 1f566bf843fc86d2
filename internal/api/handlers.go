package api

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cleared-dev/ledger/internal/accounts"
	"github.com/cleared-dev/ledger/internal/journal"
	"github.com/cleared-dev/ledger/internal/model"
)

const dateLayout = "2006-01-02"

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 4 << 20

type entryRequest struct {
	EntryNumber string        `json:"entry_number"`
	Date        string        `json:"date"`
	Description string        `json:"description"`
	Lines       []lineRequest `json:"lines"`
}

type lineRequest struct {
	AccountID   string       `json:"account_id"`
	AccountCode string       `json:"account_code"`
	Debit       model.Amount `json:"debit"`
	Credit      model.Amount `json:"credit"`
	Memo        string       `json:"memo"`
}

type reverseRequest struct {
	Date        string `json:"date"`
	Description string `json:"description"`
}

func draftLines(in []lineRequest) []journal.DraftLine {
	out := make([]journal.DraftLine, len(in))
	for i, l := range in {
		out[i] = journal.DraftLine{
			AccountID:   l.AccountID,
			AccountCode: l.AccountCode,
			Debit:       l.Debit,
			Credit:      l.Credit,
			Memo:        l.Memo,
		}
	}
	return out
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q: want YYYY-MM-DD", errBadRequest, s)
	}
	return t, nil
}

func decode(r *http.Request, w http.ResponseWriter, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
		if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil && mt == "text/csv" {
			format = "csv"
		}
	}
	parser := h.app.Parsers.Get(format)
	if parser == nil {
		h.respondWithError(w, fmt.Errorf("%w: unsupported import format %q", errBadRequest, format))
		return
	}
	records, err := parser.Parse(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.respondWithError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	res, err := h.app.Import(r.Context(), r.Header.Get(ActorHeader), "api:"+format, records)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

func (h *Handler) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	all, err := h.app.Accounts.List(r.Context())
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	if t := r.URL.Query().Get("type"); t != "" {
		all = accounts.ByType(all, model.AccountType(t))
	}
	if all == nil {
		all = []model.Account{}
	}
	respondWithJSON(w, http.StatusOK, all)
}

func (h *Handler) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	acct, ok, err := h.app.Accounts.FindByCode(r.Context(), code)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	if !ok {
		h.respondWithError(w, fmt.Errorf("account %s: %w", code, accounts.ErrNotFound))
		return
	}
	respondWithJSON(w, http.StatusOK, acct)
}

func (h *Handler) handleSetActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acct, err := h.app.SetActive(r.Context(), r.Header.Get(ActorHeader), chi.URLParam(r, "code"), active)
		if err != nil {
			h.respondWithError(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, acct)
	}
}

func (h *Handler) handlePostEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := decode(r, w, &req); err != nil {
		h.respondWithError(w, err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	entry, err := h.app.Post(r.Context(), journal.Draft{
		EntryNumber: req.EntryNumber,
		Date:        date,
		Description: req.Description,
		CreatedBy:   r.Header.Get(ActorHeader),
		Lines:       draftLines(req.Lines),
	})
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f journal.Filter
	var err error
	if f.From, err = parseDate(q.Get("from")); err != nil {
		h.respondWithError(w, err)
		return
	}
	if f.To, err = parseDate(q.Get("to")); err != nil {
		h.respondWithError(w, err)
		return
	}
	if code := q.Get("account"); code != "" {
		acct, ok, err := h.app.Accounts.FindByCode(r.Context(), code)
		if err != nil {
			h.respondWithError(w, err)
			return
		}
		if !ok {
			h.respondWithError(w, fmt.Errorf("account %s: %w", code, accounts.ErrNotFound))
			return
		}
		f.AccountID = acct.ID
	}

	entries, err := h.app.Journal.List(r.Context(), f)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	if entries == nil {
		entries = []model.JournalEntry{}
	}
	respondWithJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.app.ResolveEntry(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleAmendLines(w http.ResponseWriter, r *http.Request) {
	var req []lineRequest
	if err := decode(r, w, &req); err != nil {
		h.respondWithError(w, err)
		return
	}
	entry, err := h.app.ResolveEntry(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	if err := h.app.Journal.AmendLines(r.Context(), entry.ID, draftLines(req)); err != nil {
		h.respondWithError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReverse(w http.ResponseWriter, r *http.Request) {
	var req reverseRequest
	if r.ContentLength != 0 {
		if err := decode(r, w, &req); err != nil {
			h.respondWithError(w, err)
			return
		}
	}
	date, err := parseDate(req.Date)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	orig, err := h.app.ResolveEntry(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	entry, err := h.app.Reverse(r.Context(), orig.ID, journal.ReverseParams{
		Date:        date,
		Description: req.Description,
		CreatedBy:   r.Header.Get(ActorHeader),
	})
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, entry)
}

type balancesResponse struct {
	Accounts    []journal.Balance `json:"accounts"`
	TotalDebit  model.Amount      `json:"total_debit"`
	TotalCredit model.Amount      `json:"total_credit"`
}

func (h *Handler) handleBalances(w http.ResponseWriter, r *http.Request) {
	bs, err := h.app.Journal.Balances(r.Context())
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	if bs == nil {
		bs = []journal.Balance{}
	}
	debit, credit := journal.TrialBalance(bs)
	respondWithJSON(w, http.StatusOK, balancesResponse{Accounts: bs, TotalDebit: debit, TotalCredit: credit})
}
