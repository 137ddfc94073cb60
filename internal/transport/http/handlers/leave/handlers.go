package leavehandler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"leaveflow/internal/domain/auth"
	"leaveflow/internal/domain/leave"
	"leaveflow/internal/platform/jobs"
	"leaveflow/internal/platform/pdf"
	"leaveflow/internal/transport/http/api"
	"leaveflow/internal/transport/http/middleware"
	"leaveflow/internal/transport/http/shared"
)

const (
	submitEndpoint = "leave.requests.submit"
	maxTextLength  = 1000
	minYear        = 1900
	maxYearsAhead  = 10
)

type Handler struct {
	Service     *leave.Service
	Jobs        *jobs.Service
	Idempotency middleware.IdempotencyStore
}

func NewHandler(service *leave.Service, jobsSvc *jobs.Service, idem middleware.IdempotencyStore) *Handler {
	return &Handler{Service: service, Jobs: jobsSvc, Idempotency: idem}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/leave", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.With(middleware.Idempotency(h.Idempotency, submitEndpoint)).Post("/requests", h.handleSubmit)
		r.Get("/requests", h.handleListRequests)
		r.Get("/requests/{requestID}", h.handleGetRequest)
		r.Post("/requests/{requestID}/actions", h.handleAction)
		r.Post("/requests/{requestID}/withdraw", h.handleWithdraw)
		r.Get("/requests/{requestID}/slip.pdf", h.handleSlip)
		r.Get("/balances", h.handleListBalances)

		hr := r.With(middleware.RequireRole(auth.RoleHR, auth.RoleAdmin))
		hr.Post("/balances/open", h.handleOpenBalances)
		hr.Post("/accrual/run", h.handleRunAccrual)
		hr.Post("/rollover/run", h.handleRunRollover)
	})
}

func actorOf(user auth.UserContext) leave.Actor {
	return leave.Actor{ID: user.UserID, Role: leave.Role(user.RoleName)}
}

type submitPayload struct {
	EmployeeID      string `json:"employeeId"`
	LeaveType       string `json:"leaveType"`
	StartDate       string `json:"startDate"`
	EndDate         string `json:"endDate"`
	Reason          string `json:"reason"`
	ReliefOfficerID string `json:"reliefOfficerId"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	var payload submitPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}

	v := shared.NewValidator()
	v.Required("leaveType", payload.LeaveType, "is required")
	start, _ := v.Date("startDate", payload.StartDate)
	end, _ := v.Date("endDate", payload.EndDate)
	v.DateOrder("startDate", start, "endDate", end)
	v.MaxLength("reason", payload.Reason, maxTextLength)
	v.MaxLength("reliefOfficerId", payload.ReliefOfficerID, 64)
	if v.Reject(w, requestID) {
		return
	}

	created, err := h.Service.Submit(r.Context(), actorOf(user), leave.SubmitInput{
		EmployeeID:      payload.EmployeeID,
		LeaveType:       payload.LeaveType,
		StartDate:       start,
		EndDate:         end,
		Reason:          payload.Reason,
		ReliefOfficerID: payload.ReliefOfficerID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.Created(w, created, requestID)
}

func (h *Handler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	page := shared.ParsePagination(r, 50, 200)
	filter := leave.RequestFilter{
		EmployeeID: strings.TrimSpace(r.URL.Query().Get("employeeId")),
		Limit:      page.Limit,
		Offset:     page.Offset,
	}
	if r.URL.Query().Get("scope") == "approvals" {
		filter.ApproverID = user.UserID
	}
	for _, st := range shared.QueryList(r, "status") {
		filter.Statuses = append(filter.Statuses, leave.Status(st))
	}

	result, err := h.Service.List(r.Context(), actorOf(user), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	requests := result.Requests
	if requests == nil {
		requests = []leave.LeaveRequest{}
	}
	api.Page(w, requests, result.Total, page.Limit, page.Offset, requestID)
}

func (h *Handler) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	req, err := h.Service.Get(r.Context(), actorOf(user), chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.Success(w, req, middleware.GetRequestID(r.Context()))
}

type actionPayload struct {
	Role   string `json:"role"`
	Action string `json:"action"`
	Notes  string `json:"notes"`
}

func (h *Handler) handleAction(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	var payload actionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}
	v := shared.NewValidator()
	v.Required("role", payload.Role, "is required")
	v.Enum("role", payload.Role, []string{
		string(leave.RoleRelief), string(leave.RoleTeamLead), string(leave.RoleManager), string(leave.RoleHR), string(leave.RoleAdmin),
	}, "must be one of relief, team-lead, manager, hr, admin")
	v.Required("action", payload.Action, "is required")
	v.Enum("action", payload.Action, []string{string(leave.ActionApprove), string(leave.ActionDecline)}, "must be approve or decline")
	v.MaxLength("notes", payload.Notes, maxTextLength)
	if v.Reject(w, requestID) {
		return
	}

	updated, err := h.Service.Act(r.Context(), actorOf(user), chi.URLParam(r, "requestID"),
		leave.Role(strings.ToLower(strings.TrimSpace(payload.Role))),
		leave.Action(strings.ToLower(strings.TrimSpace(payload.Action))),
		payload.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.Success(w, updated, requestID)
}

type withdrawPayload struct {
	Action string `json:"action"`
	Notes  string `json:"notes"`
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	var payload withdrawPayload
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
			return
		}
	}
	action := leave.Action(strings.ToLower(strings.TrimSpace(payload.Action)))
	if action == "" {
		action = leave.ActionCancel
	}
	v := shared.NewValidator()
	v.Enum("action", string(action), []string{string(leave.ActionCancel), string(leave.ActionRevoke)}, "must be cancel or revoke")
	v.MaxLength("notes", payload.Notes, maxTextLength)
	if v.Reject(w, requestID) {
		return
	}

	updated, err := h.Service.Withdraw(r.Context(), actorOf(user), chi.URLParam(r, "requestID"), action, payload.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.Success(w, updated, requestID)
}

func (h *Handler) handleListBalances(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	fiscalYear, ok := shared.QueryInt(r, "fiscalYear", 0)
	if !ok {
		shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "fiscalYear", Reason: "must be an integer"}})
		return
	}
	balances, err := h.Service.Balances(r.Context(), actorOf(user), strings.TrimSpace(r.URL.Query().Get("employeeId")), fiscalYear)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if balances == nil {
		balances = []leave.LeaveBalance{}
	}
	api.Success(w, balances, requestID)
}

type openBalancesPayload struct {
	EmployeeID string `json:"employeeId"`
	FiscalYear int    `json:"fiscalYear"`
}

func (h *Handler) handleOpenBalances(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var payload openBalancesPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}
	v := shared.NewValidator()
	v.Required("employeeId", payload.EmployeeID, "is required")
	v.Year("fiscalYear", payload.FiscalYear, minYear, h.Service.Now().Year()+maxYearsAhead)
	if v.Reject(w, requestID) {
		return
	}

	summary, err := h.Service.Onboard(r.Context(), strings.TrimSpace(payload.EmployeeID), payload.FiscalYear)
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.Success(w, summary, requestID)
}

type accrualPayload struct {
	At string `json:"at"`
}

func (h *Handler) handleRunAccrual(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var payload accrualPayload
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
			return
		}
	}
	at := h.Service.Now()
	if strings.TrimSpace(payload.At) != "" {
		v := shared.NewValidator()
		parsed, _ := v.Date("at", payload.At)
		if v.Reject(w, requestID) {
			return
		}
		at = parsed
	}

	summary, err := h.Jobs.RunNow(r.Context(), jobs.JobLeaveAccrual, h.Jobs.Accrual(at))
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.Success(w, map[string]any{
		"fiscalYear": h.Service.FiscalYear(at),
		"cycleId":    leave.CycleID(at),
		"summary":    summary,
	}, requestID)
}

type rolloverPayload struct {
	ToYear int `json:"toYear"`
}

func (h *Handler) handleRunRollover(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var payload rolloverPayload
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
			return
		}
	}
	v := shared.NewValidator()
	v.Year("toYear", payload.ToYear, minYear, h.Service.Now().Year()+maxYearsAhead)
	if v.Reject(w, requestID) {
		return
	}
	toYear := payload.ToYear
	if toYear == 0 {
		toYear = h.Service.FiscalYear(h.Service.Now())
	}

	summary, err := h.Jobs.RunNow(r.Context(), jobs.JobLeaveRollover, h.Jobs.Rollover(toYear))
	if err != nil {
		writeError(w, r, err)
		return
	}
	api.Success(w, map[string]any{"fromYear": toYear - 1, "toYear": toYear, "summary": summary}, requestID)
}

func (h *Handler) handleSlip(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	req, emp, err := h.Service.Slip(r.Context(), actorOf(user), chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := pdf.RenderSlip(&buf, req, emp); err != nil {
		slog.Error("leave slip render failed", "requestId", req.ID, "err", err)
		api.Fail(w, http.StatusInternalServerError, "slip_failed", "failed to render leave slip", middleware.GetRequestID(r.Context()))
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"leave-slip-%s.pdf\"", req.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetRequestID(r.Context())

	var denied *leave.ValidationDeniedError
	var transition *leave.InvalidTransitionError
	var insufficient *leave.InsufficientBalanceError
	var notFound *leave.NotFoundError
	var inconsistent *leave.LedgerInconsistencyError

	switch {
	case errors.As(err, &denied):
		api.FailWithDetails(w, http.StatusUnprocessableEntity, string(denied.Reason), denied.Message, denied.Details, requestID)
	case errors.As(err, &transition):
		api.FailWithDetails(w, http.StatusConflict, "invalid_transition", transition.Error(), map[string]any{
			"currentStatus":   string(transition.CurrentStatus),
			"attemptedAction": string(transition.AttemptedAction),
			"role":            string(transition.Role),
		}, requestID)
	case errors.As(err, &insufficient):
		api.FailWithDetails(w, http.StatusConflict, "insufficient_balance", insufficient.Error(), map[string]any{
			"available": insufficient.Available.String(),
			"requested": insufficient.Requested.String(),
		}, requestID)
	case errors.Is(err, leave.ErrPermissionDenied):
		api.Fail(w, http.StatusForbidden, "forbidden", err.Error(), requestID)
	case errors.As(err, &notFound):
		api.Fail(w, http.StatusNotFound, "not_found", notFound.Error(), requestID)
	case errors.Is(err, leave.ErrSlipUnavailable):
		api.Fail(w, http.StatusConflict, "slip_unavailable", err.Error(), requestID)
	case errors.Is(err, leave.ErrInvalidInput):
		api.Fail(w, http.StatusBadRequest, "invalid_input", err.Error(), requestID)
	case errors.As(err, &inconsistent):
		slog.Error("leave ledger inconsistency", "employeeId", inconsistent.Key.EmployeeID, "leaveType", inconsistent.Key.LeaveType,
			"fiscalYear", inconsistent.Key.FiscalYear, "detail", inconsistent.Detail, "requestId", requestID)
		api.Fail(w, http.StatusInternalServerError, "ledger_inconsistency", "leave ledger is inconsistent", requestID)
	case errors.Is(err, leave.ErrMalformedPolicy):
		slog.Error("leave policy malformed", "err", err, "requestId", requestID)
		api.Fail(w, http.StatusInternalServerError, "policy_malformed", "leave policy is malformed", requestID)
	default:
		slog.Error("leave request failed", "err", err, "requestId", requestID)
		api.Fail(w, http.StatusInternalServerError, "internal_error", "internal server error", requestID)
	}
}
