package notifications

import (
	"context"
	"fmt"
	"log/slog"

	"leaveflow/internal/domain/leave"
)

var eventTypes = map[leave.EventKind]string{
	leave.EventSubmitted: TypeLeaveSubmitted,
	leave.EventAdvanced:  TypeLeaveAdvanced,
	leave.EventApproved:  TypeLeaveApproved,
	leave.EventRejected:  TypeLeaveRejected,
	leave.EventDebited:   TypeLeaveDebited,
	leave.EventCancelled: TypeLeaveCancelled,
	leave.EventRevoked:   TypeLeaveRevoked,
}

// Dispatcher turns leave events into notifications on a background worker.
// Notify never blocks; events beyond the queue capacity are dropped.
type Dispatcher struct {
	service *Service
	store   StoreAPI
	queue   chan dispatch
	// OnDrop, when set, is called for every event dropped on a full queue.
	OnDrop func(leave.Event)
}

type dispatch struct {
	ctx   context.Context
	event leave.Event
}

func NewDispatcher(service *Service, store StoreAPI, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Dispatcher{service: service, store: store, queue: make(chan dispatch, queueSize)}
}

func (d *Dispatcher) Start(ctx context.Context) {
	go d.worker(ctx)
}

func (d *Dispatcher) Notify(ctx context.Context, event leave.Event) {
	select {
	case d.queue <- dispatch{ctx: context.WithoutCancel(ctx), event: event}:
	default:
		slog.Warn("notification queue full", "requestId", event.Request.ID, "event", event.Kind)
		if d.OnDrop != nil {
			d.OnDrop(event)
		}
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-d.queue:
			if err := d.Deliver(job.ctx, job.event); err != nil {
				slog.Warn("notification delivery failed", "requestId", job.event.Request.ID, "event", job.event.Kind, "err", err)
			}
		}
	}
}

// Deliver writes one notification per resolved recipient. A role recipient
// fans out to every active holder of the role. Each employee is notified
// once per event.
func (d *Dispatcher) Deliver(ctx context.Context, event leave.Event) error {
	recipients, err := d.resolve(ctx, event.Recipients)
	if err != nil {
		return err
	}
	ntype, ok := eventTypes[event.Kind]
	if !ok {
		return fmt.Errorf("unknown leave event %q", event.Kind)
	}
	title, body := render(event)

	var firstErr error
	for _, employeeID := range recipients {
		if err := d.service.Create(ctx, employeeID, ntype, title, body); err != nil {
			slog.Warn("notification create failed", "employeeId", employeeID, "requestId", event.Request.ID, "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (d *Dispatcher) resolve(ctx context.Context, recipients []leave.Recipient) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, r := range recipients {
		if r.EmployeeID != "" {
			add(r.EmployeeID)
			continue
		}
		roles := []string{string(r.Role)}
		if r.Role == leave.RoleHR {
			roles = append(roles, string(leave.RoleAdmin))
		}
		ids, err := d.store.EmployeeIDsWithRole(ctx, roles...)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			add(id)
		}
	}
	return out, nil
}

func render(event leave.Event) (string, string) {
	req := event.Request
	span := fmt.Sprintf("%s leave from %s to %s (%d days)", req.LeaveType,
		req.StartDate.Format("2006-01-02"), req.EndDate.Format("2006-01-02"), req.TotalDays)
	switch event.Kind {
	case leave.EventSubmitted:
		return "Leave request awaiting your action", fmt.Sprintf("A %s was submitted and is %s.", span, req.Status)
	case leave.EventAdvanced:
		return "Leave request moved forward", fmt.Sprintf("The %s is now %s.", span, req.Status)
	case leave.EventApproved:
		return "Leave request approved", fmt.Sprintf("Your %s has been approved.", span)
	case leave.EventRejected:
		return "Leave request rejected", fmt.Sprintf("Your %s has been rejected.", span)
	case leave.EventDebited:
		return "Leave balance updated", fmt.Sprintf("%d days were deducted from your %s balance for fiscal year %d.", req.TotalDays, req.LeaveType, req.FiscalYear)
	case leave.EventCancelled:
		return "Leave request cancelled", fmt.Sprintf("The %s was cancelled by the applicant.", span)
	case leave.EventRevoked:
		return "Leave request revoked", fmt.Sprintf("The %s was revoked by HR.", span)
	}
	return "Leave request update", span
}
