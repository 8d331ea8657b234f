package main

import (
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"intentlane/pkg/access"
	"intentlane/pkg/constraint"
	"intentlane/pkg/domain"
	"intentlane/pkg/httpx"
	"intentlane/pkg/settlement"
	"intentlane/pkg/storage"
)

type server struct {
	store    storage.Store
	registry *access.Registry
	engine   *constraint.Engine
	orch     *settlement.Orchestrator
}

func newRouter(s *server) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Route("/settle", func(api chi.Router) {
		api.Post("/intents:settle", s.handleSettle)
		api.Get("/intents/{intent_id}", s.handleIntentStatus)
		api.Get("/intents/{intent_id}/events", s.handleIntentEvents)

		api.Post("/policies", s.handleCreatePolicy)
		api.Post("/policies/{intent_id}/bounds", s.handleUpdateBounds)
		api.Get("/policies/{intent_id}/evaluate", s.handleEvaluate)

		api.Post("/admin/owner:propose", s.handleProposeOwner)
		api.Post("/admin/owner:accept", s.handleAcceptOwnership)
		api.Post("/admin/updaters", s.handleSetUpdater)
		api.Post("/admin/solvers", s.handleSetSolver)
	})
	return r
}

type intentDTO struct {
	ID           string `json:"id"`
	User         string `json:"user"`
	TokenIn      string `json:"token_in"`
	TokenOut     string `json:"token_out"`
	AmountIn     string `json:"amount_in"`
	MinAmountOut string `json:"min_amount_out"`
	Deadline     uint64 `json:"deadline"`
	Signature    string `json:"signature"`
}

type venueParamsDTO struct {
	PoolID string `json:"pool_id"`
	Asset0 string `json:"asset0"`
	Asset1 string `json:"asset1"`
	FeeBps uint32 `json:"fee_bps"`
}

func (s *server) handleSettle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Solver          string         `json:"solver"`
		Intent          intentDTO      `json:"intent"`
		VenueParams     venueParamsDTO `json:"venue_params"`
		QuotedAmountOut string         `json:"quoted_amount_out"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_JSON", err.Error())
		return
	}
	solver, err := parseAddress(req.Solver)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "solver: "+err.Error())
		return
	}
	intent, err := parseIntent(req.Intent)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "intent: "+err.Error())
		return
	}
	params, err := parseVenueParams(req.VenueParams)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "venue_params: "+err.Error())
		return
	}
	quotedOut, err := parseAmountString(req.QuotedAmountOut)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "quoted_amount_out: "+err.Error())
		return
	}

	receipt, err := s.orch.Settle(r.Context(), solver, intent, params, quotedOut)
	if err != nil {
		status, code := settleErrorStatus(err)
		httpx.WriteError(w, status, code, err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"request_id": httpx.NewRequestID(),
		"receipt":    receiptDTO(receipt),
	})
}

func (s *server) handleIntentStatus(w http.ResponseWriter, r *http.Request) {
	intentID, err := parseHash(chi.URLParam(r, "intent_id"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "intent_id: "+err.Error())
		return
	}
	settled, err := s.store.IsSettled(r.Context(), intentID)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	resp := map[string]any{
		"request_id": httpx.NewRequestID(),
		"intent_id":  intentID.Hex(),
		"settled":    settled,
	}
	if settled {
		receipt, ok, err := s.store.GetReceipt(r.Context(), intentID)
		if err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
			return
		}
		if ok {
			resp["receipt"] = receiptDTO(receipt)
		}
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (s *server) handleIntentEvents(w http.ResponseWriter, r *http.Request) {
	intentID, err := parseHash(chi.URLParam(r, "intent_id"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "intent_id: "+err.Error())
		return
	}
	events, err := s.store.ListEvents(r.Context(), intentID)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	out := make([]map[string]any, 0, len(events))
	for _, e := range events {
		entry := map[string]any{
			"type":        e.Type,
			"payload":     e.Payload,
			"occurred_at": e.At,
		}
		if e.Actor != (common.Address{}) {
			entry["actor"] = e.Actor.Hex()
		}
		out = append(out, entry)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"request_id": httpx.NewRequestID(),
		"intent_id":  intentID.Hex(),
		"events":     out,
	})
}

func (s *server) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller             string `json:"caller"`
		IntentID           string `json:"intent_id"`
		MinAmountOut       string `json:"min_amount_out"`
		ReferenceAmountOut string `json:"reference_amount_out"`
		MaxSlippageBps     uint32 `json:"max_slippage_bps"`
		Deadline           uint64 `json:"deadline"`
		DelegatedUpdater   string `json:"delegated_updater"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_JSON", err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "caller: "+err.Error())
		return
	}
	intentID, err := parseHash(req.IntentID)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "intent_id: "+err.Error())
		return
	}
	minOut, err := parseAmountString(req.MinAmountOut)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "min_amount_out: "+err.Error())
		return
	}
	refOut, err := parseAmountString(req.ReferenceAmountOut)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "reference_amount_out: "+err.Error())
		return
	}
	updater, err := parseAddress(req.DelegatedUpdater)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "delegated_updater: "+err.Error())
		return
	}
	policy := domain.Policy{
		IntentID:           intentID,
		MinAmountOut:       minOut,
		ReferenceAmountOut: refOut,
		MaxSlippageBps:     req.MaxSlippageBps,
		Deadline:           req.Deadline,
		DelegatedUpdater:   updater,
	}
	if err := s.engine.CreatePolicy(r.Context(), caller, policy); err != nil {
		status, code := settleErrorStatus(err)
		httpx.WriteError(w, status, code, err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"request_id": httpx.NewRequestID(),
		"intent_id":  intentID.Hex(),
	})
}

func (s *server) handleUpdateBounds(w http.ResponseWriter, r *http.Request) {
	intentID, err := parseHash(chi.URLParam(r, "intent_id"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "intent_id: "+err.Error())
		return
	}
	var req struct {
		Caller             string `json:"caller"`
		MinAmountOut       string `json:"min_amount_out"`
		ReferenceAmountOut string `json:"reference_amount_out"`
		MaxSlippageBps     uint32 `json:"max_slippage_bps"`
		Deadline           uint64 `json:"deadline"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_JSON", err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "caller: "+err.Error())
		return
	}
	minOut, err := parseAmountString(req.MinAmountOut)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "min_amount_out: "+err.Error())
		return
	}
	refOut, err := parseAmountString(req.ReferenceAmountOut)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "reference_amount_out: "+err.Error())
		return
	}
	if err := s.engine.UpdateBounds(r.Context(), caller, intentID, minOut, refOut, req.MaxSlippageBps, req.Deadline); err != nil {
		status, code := settleErrorStatus(err)
		httpx.WriteError(w, status, code, err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"request_id": httpx.NewRequestID(),
		"intent_id":  intentID.Hex(),
	})
}

func (s *server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	intentID, err := parseHash(chi.URLParam(r, "intent_id"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "intent_id: "+err.Error())
		return
	}
	quotedOut, err := parseAmountString(r.URL.Query().Get("quoted_amount_out"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "quoted_amount_out: "+err.Error())
		return
	}
	dec, err := s.engine.Evaluate(r.Context(), intentID, quotedOut)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	resp := map[string]any{
		"request_id": httpx.NewRequestID(),
		"intent_id":  intentID.Hex(),
		"allowed":    dec.Allowed,
		"reason":     string(dec.Reason),
	}
	if dec.EffectiveMinOut != nil {
		resp["effective_min_out"] = dec.EffectiveMinOut.String()
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (s *server) handleProposeOwner(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller    string `json:"caller"`
		Candidate string `json:"candidate"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_JSON", err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "caller: "+err.Error())
		return
	}
	candidate, err := parseAddress(req.Candidate)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "candidate: "+err.Error())
		return
	}
	if err := s.registry.ProposeOwner(r.Context(), caller, candidate); err != nil {
		status, code := settleErrorStatus(err)
		httpx.WriteError(w, status, code, err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"request_id":    httpx.NewRequestID(),
		"pending_owner": candidate.Hex(),
	})
}

func (s *server) handleAcceptOwnership(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller string `json:"caller"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_JSON", err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "caller: "+err.Error())
		return
	}
	if err := s.registry.AcceptOwnership(r.Context(), caller); err != nil {
		status, code := settleErrorStatus(err)
		httpx.WriteError(w, status, code, err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"request_id": httpx.NewRequestID(),
		"owner":      caller.Hex(),
	})
}

func (s *server) handleSetUpdater(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller  string `json:"caller"`
		Updater string `json:"updater"`
		Enabled bool   `json:"enabled"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_JSON", err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "caller: "+err.Error())
		return
	}
	updater, err := parseAddress(req.Updater)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "updater: "+err.Error())
		return
	}
	if err := s.engine.SetDelegatedUpdater(r.Context(), caller, updater, req.Enabled); err != nil {
		status, code := settleErrorStatus(err)
		httpx.WriteError(w, status, code, err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"request_id": httpx.NewRequestID(),
		"updater":    updater.Hex(),
		"enabled":    req.Enabled,
	})
}

func (s *server) handleSetSolver(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller  string `json:"caller"`
		Solver  string `json:"solver"`
		Enabled bool   `json:"enabled"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_JSON", err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "caller: "+err.Error())
		return
	}
	solver, err := parseAddress(req.Solver)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "solver: "+err.Error())
		return
	}
	if err := s.orch.SetAuthorizedSolver(r.Context(), caller, solver, req.Enabled); err != nil {
		status, code := settleErrorStatus(err)
		httpx.WriteError(w, status, code, err.Error())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"request_id": httpx.NewRequestID(),
		"solver":     solver.Hex(),
		"enabled":    req.Enabled,
	})
}

func receiptDTO(r domain.Receipt) map[string]any {
	return map[string]any{
		"receipt_id":        r.ReceiptID,
		"intent_id":         r.IntentID.Hex(),
		"user":              r.User.Hex(),
		"solver":            r.Solver.Hex(),
		"token_in":          r.TokenIn.Hex(),
		"token_out":         r.TokenOut.Hex(),
		"amount_in":         r.AmountIn.String(),
		"quoted_amount_out": r.QuotedAmountOut.String(),
		"settled_at":        r.SettledAt,
	}
}

func settleErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden, "UNAUTHORIZED"
	case errors.Is(err, domain.ErrUnauthorizedSolver):
		return http.StatusForbidden, "UNAUTHORIZED_SOLVER"
	case errors.Is(err, domain.ErrUnauthorizedVenue):
		return http.StatusForbidden, "UNAUTHORIZED_VENUE"
	case errors.Is(err, domain.ErrPolicyNotFound):
		return http.StatusNotFound, "POLICY_NOT_FOUND"
	case errors.Is(err, domain.ErrInvalidBounds):
		return http.StatusBadRequest, "INVALID_BOUNDS"
	case errors.Is(err, domain.ErrIntentExpired):
		return http.StatusConflict, "INTENT_EXPIRED"
	case errors.Is(err, domain.ErrInvalidSignature):
		return http.StatusBadRequest, "INVALID_SIGNATURE"
	case errors.Is(err, domain.ErrQuotedAmountTooLow):
		return http.StatusConflict, "QUOTED_AMOUNT_TOO_LOW"
	case errors.Is(err, domain.ErrVenueMismatch):
		return http.StatusBadRequest, "VENUE_MISMATCH"
	case errors.Is(err, domain.ErrUnsupportedAssetFlow):
		return http.StatusBadRequest, "UNSUPPORTED_ASSET_FLOW"
	case errors.Is(err, domain.ErrAlreadySettled):
		return http.StatusConflict, "ALREADY_SETTLED"
	case errors.Is(err, domain.ErrReentrantCall):
		return http.StatusConflict, "REENTRANT_CALL"
	case errors.Is(err, domain.ErrVenueCallbackMissing):
		return http.StatusBadGateway, "VENUE_PROTOCOL"
	}
	if reason, ok := domain.IsPolicyRejected(err); ok {
		return http.StatusConflict, "POLICY_REJECTED_" + string(reason)
	}
	return http.StatusInternalServerError, "INTERNAL"
}
