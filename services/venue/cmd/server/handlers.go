package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"intentlane/pkg/httpx"
	"intentlane/services/venue/internal/pool"
)

func errMalformed(kind, value string) error {
	return fmt.Errorf("malformed %s %q", kind, value)
}

func newRouter(book *pool.Book) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Route("/venue", func(api chi.Router) {
		api.Post("/locks", handleLock(book))
		api.Post("/exchange", handleExchange(book))
		api.Post("/pulls", handlePull(book))
		api.Post("/releases", handleRelease(book))
		api.Get("/transfers", handleTransfers(book))
	})
	return r
}

func handleLock(book *pool.Book) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Token string `json:"token"`
		}
		if err := httpx.ReadJSON(r, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "BAD_JSON", err.Error())
			return
		}
		token, err := parseHash(req.Token)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "token: "+err.Error())
			return
		}
		if err := book.Lock(token); err != nil {
			httpx.WriteError(w, http.StatusConflict, "LOCK_HELD", err.Error())
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"request_id": httpx.NewRequestID(),
			"locked":     true,
		})
	}
}

func handleExchange(book *pool.Book) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PoolID          string `json:"pool_id"`
			Asset0          string `json:"asset0"`
			Asset1          string `json:"asset1"`
			FeeBps          uint32 `json:"fee_bps"`
			QuotedAmountOut string `json:"quoted_amount_out"`
		}
		if err := httpx.ReadJSON(r, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "BAD_JSON", err.Error())
			return
		}
		poolID, err := parseHash(req.PoolID)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "pool_id: "+err.Error())
			return
		}
		asset0, err := parseAddress(req.Asset0)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "asset0: "+err.Error())
			return
		}
		asset1, err := parseAddress(req.Asset1)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "asset1: "+err.Error())
			return
		}
		quotedOut, err := parseAmount(req.QuotedAmountOut)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "quoted_amount_out: "+err.Error())
			return
		}

		amountIn, err := book.Exchange(poolID, asset0, asset1, quotedOut)
		if err != nil {
			status, code := exchangeErrorStatus(err)
			httpx.WriteError(w, status, code, err.Error())
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"request_id": httpx.NewRequestID(),
			"legs": []map[string]any{
				{"asset": asset0.Hex(), "amount": amountIn.String()},
				{"asset": asset1.Hex(), "amount": "-" + quotedOut.String()},
			},
		})
	}
}

func handlePull(book *pool.Book) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Asset  string `json:"asset"`
			Payer  string `json:"payer"`
			Amount string `json:"amount"`
		}
		if err := httpx.ReadJSON(r, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "BAD_JSON", err.Error())
			return
		}
		asset, err := parseAddress(req.Asset)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "asset: "+err.Error())
			return
		}
		payer, err := parseAddress(req.Payer)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "payer: "+err.Error())
			return
		}
		amount, err := parseAmount(req.Amount)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "amount: "+err.Error())
			return
		}
		if err := book.Pull(asset, payer, amount); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"request_id": httpx.NewRequestID(),
			"pulled":     amount.String(),
		})
	}
}

func handleRelease(book *pool.Book) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Asset     string `json:"asset"`
			Recipient string `json:"recipient"`
			Amount    string `json:"amount"`
		}
		if err := httpx.ReadJSON(r, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "BAD_JSON", err.Error())
			return
		}
		asset, err := parseAddress(req.Asset)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "asset: "+err.Error())
			return
		}
		recipient, err := parseAddress(req.Recipient)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "recipient: "+err.Error())
			return
		}
		amount, err := parseAmount(req.Amount)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "amount: "+err.Error())
			return
		}
		if err := book.Release(asset, recipient, amount); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"request_id": httpx.NewRequestID(),
			"released":   amount.String(),
		})
	}
}

func handleTransfers(book *pool.Book) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		transfers := book.Transfers()
		out := make([]map[string]any, 0, len(transfers))
		for _, tr := range transfers {
			out = append(out, map[string]any{
				"kind":         tr.Kind,
				"asset":        tr.Asset.Hex(),
				"counterparty": tr.Counterparty.Hex(),
				"amount":       tr.Amount.String(),
			})
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"request_id": httpx.NewRequestID(),
			"transfers":  out,
		})
	}
}

func exchangeErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, pool.ErrPoolNotFound):
		return http.StatusNotFound, "POOL_NOT_FOUND"
	case errors.Is(err, pool.ErrPairMismatch):
		return http.StatusBadRequest, "PAIR_MISMATCH"
	case errors.Is(err, pool.ErrInsufficientLiquidity):
		return http.StatusConflict, "INSUFFICIENT_LIQUIDITY"
	}
	return http.StatusInternalServerError, "INTERNAL"
}
