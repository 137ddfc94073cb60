package leave

import (
	"context"
	"errors"
	"time"
)

// Actor is the authenticated caller of a transition. Role is the caller's
// system role, not the approval role claimed for the transition.
type Actor struct {
	ID   string
	Role Role
}

func (a Actor) IsHR() bool {
	return a.Role == RoleHR || a.Role == RoleAdmin
}

type EventKind string

const (
	EventSubmitted EventKind = "leave.submitted"
	EventAdvanced  EventKind = "leave.advanced"
	EventApproved  EventKind = "leave.approved"
	EventRejected  EventKind = "leave.rejected"
	EventDebited   EventKind = "leave.debited"
	EventCancelled EventKind = "leave.cancelled"
	EventRevoked   EventKind = "leave.revoked"
)

// Recipient names an employee, or every holder of Role when EmployeeID is empty.
type Recipient struct {
	EmployeeID string `json:"employeeId,omitempty"`
	Role       Role   `json:"role,omitempty"`
}

type Event struct {
	Request    LeaveRequest
	Kind       EventKind
	Recipients []Recipient
}

// Notifier receives events after the state change has committed. It must
// not block the caller and has no way to fail it.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) {}

type edge struct {
	from   Status
	action Action
	role   Role
}

type routeFunc func(LeaveRequest) Status

func fixed(s Status) routeFunc {
	return func(LeaveRequest) Status { return s }
}

func afterRelief(req LeaveRequest) Status {
	switch {
	case req.TeamLeadID != "":
		return StatusPendingTeamLead
	case req.ManagerID != "":
		return StatusPendingManager
	default:
		return StatusPendingHR
	}
}

func afterTeamLead(req LeaveRequest) Status {
	if req.ManagerID != "" {
		return StatusPendingManager
	}
	return StatusPendingHR
}

var transitions = map[edge]routeFunc{
	{StatusPendingRelief, ActionApprove, RoleRelief}:     afterRelief,
	{StatusPendingRelief, ActionDecline, RoleRelief}:     fixed(StatusRejected),
	{StatusPendingTeamLead, ActionApprove, RoleTeamLead}: afterTeamLead,
	{StatusPendingTeamLead, ActionDecline, RoleTeamLead}: fixed(StatusRejected),
	{StatusPendingManager, ActionApprove, RoleManager}:   fixed(StatusPendingHR),
	{StatusPendingManager, ActionDecline, RoleManager}:   fixed(StatusRejected),
	{StatusPendingHR, ActionApprove, RoleHR}:             fixed(StatusApproved),
	{StatusPendingHR, ActionDecline, RoleHR}:             fixed(StatusRejected),
}

// NextStatus resolves the edge for (req.Status, action, role).
func NextStatus(req LeaveRequest, role Role, action Action) (Status, bool) {
	if role == RoleAdmin {
		role = RoleHR
	}
	route, ok := transitions[edge{req.Status, action, role}]
	if !ok {
		return "", false
	}
	return route(req), true
}

// InitialStatus is the first status of an admitted request.
func InitialStatus(req LeaveRequest, policy LeavePolicy) (Status, ReliefStatus) {
	if policy.Workflow.RequiresReliefOfficer || req.ReliefOfficerID != "" {
		return StatusPendingRelief, ReliefPending
	}
	return afterRelief(req), ReliefNotRequired
}

// Workflow owns request status and approval history.
type Workflow struct {
	Store    StoreAPI
	Ledger   *Ledger
	Notifier Notifier
	Now      func() time.Time
}

func NewWorkflow(store StoreAPI, ledger *Ledger, notifier Notifier, now func() time.Time) *Workflow {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if now == nil {
		now = time.Now
	}
	return &Workflow{Store: store, Ledger: ledger, Notifier: notifier, Now: now}
}

// Create persists an admitted request in its initial status with the
// submission history entry. store may be transaction bound; no event is
// emitted until the caller invokes Submitted after commit.
func (w *Workflow) Create(ctx context.Context, store StoreAPI, req LeaveRequest, policy LeavePolicy, actorID string) (LeaveRequest, error) {
	if req.ID == "" || req.EmployeeID == "" {
		return LeaveRequest{}, errors.New("request id and employee id required")
	}
	now := w.Now().UTC()
	req.PolicyID = policy.ID
	req.Status, req.ReliefStatus = InitialStatus(req, policy)
	req.CreatedAt = now
	req.UpdatedAt = now
	req.History = []ApprovalEntry{{
		Seq:        1,
		ActorID:    actorID,
		Role:       RoleEmployee,
		Action:     ActionSubmit,
		FromStatus: StatusDraft,
		ToStatus:   req.Status,
		Timestamp:  now,
	}}
	if err := store.CreateRequest(ctx, req); err != nil {
		return LeaveRequest{}, err
	}
	return req, nil
}

func (w *Workflow) Submitted(ctx context.Context, req LeaveRequest) {
	w.Notifier.Notify(ctx, Event{Request: req, Kind: EventSubmitted, Recipients: nextApprovers(req)})
}

// Transition applies one approval-chain action. The status write, the
// debit of the final HR approval and the history entry commit together.
func (w *Workflow) Transition(ctx context.Context, requestID string, actor Actor, role Role, action Action, notes string) (LeaveRequest, error) {
	var updated LeaveRequest
	err := w.Store.WithTx(ctx, func(tx StoreAPI) error {
		req, err := tx.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		next, ok := NextStatus(req, role, action)
		if !ok {
			return &InvalidTransitionError{CurrentStatus: req.Status, AttemptedAction: action, Role: role}
		}
		if err := authorize(req, actor, role); err != nil {
			return err
		}

		relief := req.ReliefStatus
		if role == RoleRelief {
			relief = ReliefAccepted
			if action == ActionDecline {
				relief = ReliefDeclined
			}
		}

		updated, err = w.apply(ctx, tx, req, next, relief, actor, role, action, notes)
		return err
	})
	if err != nil {
		return LeaveRequest{}, err
	}

	switch updated.Status {
	case StatusApproved:
		w.Notifier.Notify(ctx, Event{Request: updated, Kind: EventApproved, Recipients: applicant(updated)})
		w.Notifier.Notify(ctx, Event{Request: updated, Kind: EventDebited, Recipients: applicant(updated)})
	case StatusRejected:
		w.Notifier.Notify(ctx, Event{Request: updated, Kind: EventRejected, Recipients: applicant(updated)})
	default:
		w.Notifier.Notify(ctx, Event{Request: updated, Kind: EventAdvanced, Recipients: append(applicant(updated), nextApprovers(updated)...)})
	}
	return updated, nil
}

// Withdraw takes a non-terminal request out of the approval chain: cancel by
// the applicant, revoke by HR.
func (w *Workflow) Withdraw(ctx context.Context, requestID string, actor Actor, action Action, notes string) (LeaveRequest, error) {
	var updated LeaveRequest
	err := w.Store.WithTx(ctx, func(tx StoreAPI) error {
		req, err := tx.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}

		var next Status
		var role Role
		switch action {
		case ActionCancel:
			next, role = StatusCancelled, RoleEmployee
		case ActionRevoke:
			next, role = StatusRevoked, RoleHR
		default:
			return &InvalidTransitionError{CurrentStatus: req.Status, AttemptedAction: action, Role: actor.Role}
		}
		if req.Status.Terminal() {
			return &InvalidTransitionError{CurrentStatus: req.Status, AttemptedAction: action, Role: role}
		}
		if role == RoleEmployee && actor.ID != req.EmployeeID {
			return &PermissionDeniedError{RequiredRole: RoleEmployee, ActorID: actor.ID}
		}
		if role == RoleHR && !actor.IsHR() {
			return &PermissionDeniedError{RequiredRole: RoleHR, ActorID: actor.ID}
		}

		updated, err = w.apply(ctx, tx, req, next, req.ReliefStatus, actor, role, action, notes)
		return err
	})
	if err != nil {
		return LeaveRequest{}, err
	}

	kind := EventCancelled
	if updated.Status == StatusRevoked {
		kind = EventRevoked
	}
	w.Notifier.Notify(ctx, Event{Request: updated, Kind: kind, Recipients: append(applicant(updated), involved(updated)...)})
	return updated, nil
}

func (w *Workflow) apply(ctx context.Context, tx StoreAPI, req LeaveRequest, next Status, relief ReliefStatus, actor Actor, role Role, action Action, notes string) (LeaveRequest, error) {
	now := w.Now().UTC()
	changed, err := tx.UpdateRequestStatus(ctx, req.ID, req.Status, next, relief, now)
	if err != nil {
		return LeaveRequest{}, err
	}
	if !changed {
		return LeaveRequest{}, &InvalidTransitionError{CurrentStatus: req.Status, AttemptedAction: action, Role: role}
	}

	if next == StatusApproved {
		if err := w.Ledger.Bind(tx).Debit(ctx, req.BalanceKey(), req.TotalDays); err != nil {
			return LeaveRequest{}, err
		}
	}

	entry := ApprovalEntry{
		Seq:        len(req.History) + 1,
		ActorID:    actor.ID,
		Role:       role,
		Action:     action,
		FromStatus: req.Status,
		ToStatus:   next,
		Notes:      notes,
		Timestamp:  now,
	}
	if err := tx.AppendHistory(ctx, req.ID, entry); err != nil {
		return LeaveRequest{}, err
	}

	req.Status = next
	req.ReliefStatus = relief
	req.UpdatedAt = now
	req.History = append(req.History, entry)
	return req, nil
}

func authorize(req LeaveRequest, actor Actor, role Role) error {
	var assigned string
	switch role {
	case RoleRelief:
		assigned = req.ReliefOfficerID
	case RoleTeamLead:
		assigned = req.TeamLeadID
	case RoleManager:
		assigned = req.ManagerID
	case RoleHR, RoleAdmin:
		if actor.IsHR() {
			return nil
		}
		return &PermissionDeniedError{RequiredRole: RoleHR, ActorID: actor.ID}
	}
	if assigned == "" || actor.ID != assigned {
		return &PermissionDeniedError{RequiredRole: role, ActorID: actor.ID}
	}
	return nil
}

func applicant(req LeaveRequest) []Recipient {
	return []Recipient{{EmployeeID: req.EmployeeID}}
}

func nextApprovers(req LeaveRequest) []Recipient {
	switch req.Status {
	case StatusPendingRelief:
		return []Recipient{{EmployeeID: req.ReliefOfficerID}}
	case StatusPendingTeamLead:
		return []Recipient{{EmployeeID: req.TeamLeadID}}
	case StatusPendingManager:
		return []Recipient{{EmployeeID: req.ManagerID}}
	case StatusPendingHR:
		return []Recipient{{Role: RoleHR}}
	}
	return nil
}

func involved(req LeaveRequest) []Recipient {
	var out []Recipient
	for _, id := range []string{req.ReliefOfficerID, req.TeamLeadID, req.ManagerID} {
		if id != "" {
			out = append(out, Recipient{EmployeeID: id})
		}
	}
	return out
}
