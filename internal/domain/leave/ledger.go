package leave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"leaveflow/internal/requestctx"
)

// BatchSummary reports the outcome of an accrual or rollover run.
type BatchSummary struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// AccruedBalance is balance after one accrual cycle at rate. A non-positive
// ceiling means none, and a balance already above the ceiling is kept.
func AccruedBalance(balance, rate, ceiling decimal.Decimal) decimal.Decimal {
	if !ceiling.IsPositive() {
		return balance.Add(rate)
	}
	if balance.GreaterThanOrEqual(ceiling) {
		return balance
	}
	return decimal.Min(balance.Add(rate), ceiling)
}

// Ledger is the only writer of LeaveBalance records. Balances increase
// through Open, Accrue and RolloverFiscalYear and decrease only through Debit.
type Ledger struct {
	Store StoreAPI
	Now   func() time.Time
}

func NewLedger(store StoreAPI, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{Store: store, Now: now}
}

// Bind returns a ledger that runs against store, typically a transaction-bound one.
func (l *Ledger) Bind(store StoreAPI) *Ledger {
	return &Ledger{Store: store, Now: l.Now}
}

func (l *Ledger) Peek(ctx context.Context, key BalanceKey) (LeaveBalance, error) {
	return l.Store.GetBalance(ctx, key)
}

// Open creates the balance record of a newly onboarded employee for the
// policy's leave type. Reports false when the record already existed.
func (l *Ledger) Open(ctx context.Context, employee Employee, policy LeavePolicy, fiscalYear int) (bool, error) {
	if err := policy.Validate(); err != nil {
		return false, err
	}
	if !policy.Eligibility.Allows(employee.EmploymentType) {
		return false, nil
	}
	return l.Store.InsertBalance(ctx, LeaveBalance{
		ID: uuid.NewString(),
		BalanceKey: BalanceKey{
			EmployeeID: employee.ID,
			LeaveType:  policy.LeaveType,
			FiscalYear: fiscalYear,
		},
		Balance:        policy.Accrual.OpeningBalance,
		AccrualRate:    policy.Accrual.Rate,
		MaxAccrual:     policy.Accrual.MaxAccrual,
		CarryOverLimit: policy.CarryOver.MaxDays,
		UpdatedAt:      l.Now().UTC(),
	})
}

// Accrue credits one accrual cycle to every record of fiscalYear whose
// watermark differs from cycleID. Re-running with the same cycleID is a no-op.
func (l *Ledger) Accrue(ctx context.Context, fiscalYear int, cycleID string) (BatchSummary, error) {
	var summary BatchSummary
	if cycleID == "" {
		return summary, errors.New("accrual cycle id required")
	}

	balances, err := l.Store.ListBalancesForYear(ctx, fiscalYear)
	if err != nil {
		return summary, err
	}

	for _, b := range balances {
		if b.LastAccruedCycle == cycleID {
			summary.Skipped++
			continue
		}
		if b.AccrualRate.IsNegative() || b.MaxAccrual.IsNegative() {
			slog.Warn("leave accrual skipped malformed balance",
				"balanceId", b.ID, "employeeId", b.EmployeeID, "leaveType", b.LeaveType, "fiscalYear", b.FiscalYear,
				"accrualRate", b.AccrualRate.String(), "maxAccrual", b.MaxAccrual.String())
			summary.Failed++
			continue
		}
		if b.Balance.IsNegative() {
			slog.Warn("leave accrual found negative balance",
				"balanceId", b.ID, "employeeId", b.EmployeeID, "leaveType", b.LeaveType, "balance", b.Balance.String())
			summary.Failed++
			continue
		}

		changed, err := l.Store.AccrueBalance(ctx, b.ID, cycleID, l.Now().UTC())
		if err != nil {
			slog.Warn("leave accrual failed", "balanceId", b.ID, "employeeId", b.EmployeeID, "leaveType", b.LeaveType, "err", err)
			summary.Failed++
			continue
		}
		if !changed {
			summary.Skipped++
			continue
		}
		summary.Processed++
	}

	slog.Info("leave accrual finished", "fiscalYear", fiscalYear, "cycleId", cycleID,
		"processed", summary.Processed, "skipped", summary.Skipped, "failed", summary.Failed)
	return summary, nil
}

// RolloverFiscalYear seeds toYear records for every active employee and
// applicable policy with the capped carry-over from fromYear. Existing toYear
// records keep their balance and only get fresh policy terms, so the run is
// safe to repeat after a partial failure.
func (l *Ledger) RolloverFiscalYear(ctx context.Context, fromYear, toYear int) (BatchSummary, error) {
	var summary BatchSummary
	if toYear <= fromYear {
		return summary, fmt.Errorf("rollover target year %d must follow %d", toYear, fromYear)
	}

	employees, err := l.Store.ListActiveEmployees(ctx)
	if err != nil {
		return summary, err
	}
	policies, err := l.Store.ListActivePolicies(ctx)
	if err != nil {
		return summary, err
	}

	for _, emp := range employees {
		for _, policy := range policies {
			if !policy.Eligibility.Allows(emp.EmploymentType) {
				continue
			}
			created, err := l.rolloverOne(ctx, emp, policy, fromYear, toYear)
			if err != nil {
				slog.Warn("leave rollover failed",
					"employeeId", emp.ID, "leaveType", policy.LeaveType, "policyId", policy.ID, "toYear", toYear, "err", err)
				summary.Failed++
				continue
			}
			if created {
				summary.Processed++
			} else {
				summary.Skipped++
			}
		}
	}

	slog.Info("leave rollover finished", "fromYear", fromYear, "toYear", toYear,
		"processed", summary.Processed, "skipped", summary.Skipped, "failed", summary.Failed)
	return summary, nil
}

func (l *Ledger) rolloverOne(ctx context.Context, emp Employee, policy LeavePolicy, fromYear, toYear int) (bool, error) {
	if err := policy.Validate(); err != nil {
		return false, err
	}

	carry := decimal.Zero
	if policy.CarryOver.Enabled {
		prevKey := BalanceKey{EmployeeID: emp.ID, LeaveType: policy.LeaveType, FiscalYear: fromYear}
		prev, err := l.Store.GetBalance(ctx, prevKey)
		switch {
		case IsNotFound(err):
		case err != nil:
			return false, err
		case prev.Balance.IsNegative():
			return false, &LedgerInconsistencyError{Key: prevKey, Detail: "negative balance " + prev.Balance.String()}
		default:
			carry = decimal.Min(prev.Balance, policy.CarryOver.MaxDays)
		}
	}

	next := LeaveBalance{
		ID: uuid.NewString(),
		BalanceKey: BalanceKey{
			EmployeeID: emp.ID,
			LeaveType:  policy.LeaveType,
			FiscalYear: toYear,
		},
		Balance:        carry,
		AccrualRate:    policy.Accrual.Rate,
		MaxAccrual:     policy.Accrual.MaxAccrual,
		CarryOverLimit: policy.CarryOver.MaxDays,
		CarriedOver:    carry,
		CarryOverUsed:  decimal.Zero,
		UpdatedAt:      l.Now().UTC(),
	}
	created, err := l.Store.InsertBalance(ctx, next)
	if err != nil {
		return false, err
	}
	if !created {
		if err := l.Store.RefreshBalanceTerms(ctx, next); err != nil {
			return false, err
		}
	}
	return created, nil
}

// Debit removes days from the balance. It must run on the store of the
// transaction that carries the approving status change.
func (l *Ledger) Debit(ctx context.Context, key BalanceKey, days int) error {
	if days <= 0 {
		return fmt.Errorf("debit of %d days: must be positive", days)
	}
	amount := decimal.NewFromInt(int64(days))

	current, err := l.Store.GetBalance(ctx, key)
	if err != nil {
		return err
	}
	if current.Balance.IsNegative() {
		requestctx.Logger(ctx).Error("leave ledger negative balance observed", "employeeId", key.EmployeeID, "leaveType", key.LeaveType,
			"fiscalYear", key.FiscalYear, "balance", current.Balance.String())
		return &LedgerInconsistencyError{Key: key, Detail: "negative balance " + current.Balance.String() + " before debit"}
	}
	if current.Balance.LessThan(amount) {
		return &InsufficientBalanceError{Key: key, Available: current.Balance, Requested: amount}
	}

	ok, err := l.Store.DebitBalance(ctx, key, amount, l.Now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		latest, err := l.Store.GetBalance(ctx, key)
		if err != nil {
			return err
		}
		return &InsufficientBalanceError{Key: key, Available: latest.Balance, Requested: amount}
	}
	return nil
}
