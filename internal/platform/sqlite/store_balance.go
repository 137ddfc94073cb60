package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"leaveflow/internal/domain/leave"
)

const balanceColumns = `id, employee_id, leave_type, fiscal_year, balance, accrual_rate, max_accrual,
      carry_over_limit, carried_over, carry_over_used, COALESCE(last_accrued_cycle, ''), updated_at`

func scanBalance(row rowScanner) (leave.LeaveBalance, error) {
	var b leave.LeaveBalance
	var updated string
	if err := row.Scan(&b.ID, &b.EmployeeID, &b.LeaveType, &b.FiscalYear, &b.Balance, &b.AccrualRate, &b.MaxAccrual,
		&b.CarryOverLimit, &b.CarriedOver, &b.CarryOverUsed, &b.LastAccruedCycle, &updated); err != nil {
		return leave.LeaveBalance{}, err
	}
	var err error
	b.UpdatedAt, err = parseTS(updated)
	return b, err
}

func (s *Store) GetBalance(ctx context.Context, key leave.BalanceKey) (leave.LeaveBalance, error) {
	b, err := scanBalance(s.db.QueryRowContext(ctx, `
    SELECT `+balanceColumns+`
    FROM leave_balances
    WHERE employee_id = ? AND leave_type = ? AND fiscal_year = ?
  `, key.EmployeeID, key.LeaveType, key.FiscalYear))
	if err != nil {
		return leave.LeaveBalance{}, notFound(err, "balance", key.EmployeeID, key.LeaveType, strconv.Itoa(key.FiscalYear))
	}
	return b, nil
}

func (s *Store) listBalances(ctx context.Context, where string, args ...any) ([]leave.LeaveBalance, error) {
	rows, err := s.db.QueryContext(ctx, `
    SELECT `+balanceColumns+`
    FROM leave_balances
    WHERE `+where+`
    ORDER BY employee_id, leave_type
  `, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []leave.LeaveBalance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) ListBalances(ctx context.Context, employeeID string, fiscalYear int) ([]leave.LeaveBalance, error) {
	return s.listBalances(ctx, "employee_id = ? AND fiscal_year = ?", employeeID, fiscalYear)
}

func (s *Store) ListBalancesForYear(ctx context.Context, fiscalYear int) ([]leave.LeaveBalance, error) {
	return s.listBalances(ctx, "fiscal_year = ?", fiscalYear)
}

func (s *Store) InsertBalance(ctx context.Context, b leave.LeaveBalance) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
    INSERT INTO leave_balances (id, employee_id, leave_type, fiscal_year, balance, accrual_rate, max_accrual,
      carry_over_limit, carried_over, carry_over_used, updated_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    ON CONFLICT (employee_id, leave_type, fiscal_year) DO NOTHING
  `, b.ID, b.EmployeeID, b.LeaveType, b.FiscalYear, dec(b.Balance), dec(b.AccrualRate), dec(b.MaxAccrual),
		dec(b.CarryOverLimit), dec(b.CarriedOver), dec(b.CarryOverUsed), formatTS(b.UpdatedAt))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *Store) RefreshBalanceTerms(ctx context.Context, b leave.LeaveBalance) error {
	_, err := s.db.ExecContext(ctx, `
    UPDATE leave_balances
    SET accrual_rate = ?, max_accrual = ?, carry_over_limit = ?, updated_at = ?
    WHERE employee_id = ? AND leave_type = ? AND fiscal_year = ?
  `, dec(b.AccrualRate), dec(b.MaxAccrual), dec(b.CarryOverLimit), formatTS(b.UpdatedAt), b.EmployeeID, b.LeaveType, b.FiscalYear)
	return err
}

// AccrueBalance credits one cycle. The write is conditional on the balance
// read in the same transaction and on the cycle watermark.
func (s *Store) AccrueBalance(ctx context.Context, balanceID, cycleID string, at time.Time) (bool, error) {
	var changed bool
	err := s.withTx(ctx, func(tx *Store) error {
		var raw, rawRate, rawCeiling, last string
		err := tx.db.QueryRowContext(ctx, `
    SELECT balance, accrual_rate, max_accrual, COALESCE(last_accrued_cycle, '')
    FROM leave_balances
    WHERE id = ?
  `, balanceID).Scan(&raw, &rawRate, &rawCeiling, &last)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && last == cycleID) {
			return nil
		}
		if err != nil {
			return err
		}

		current, err := parseDec(raw)
		if err != nil {
			return err
		}
		rate, err := parseDec(rawRate)
		if err != nil {
			return err
		}
		ceiling, err := parseDec(rawCeiling)
		if err != nil {
			return err
		}

		res, err := tx.db.ExecContext(ctx, `
    UPDATE leave_balances
    SET balance = ?, last_accrued_cycle = ?, updated_at = ?
    WHERE id = ? AND balance = ? AND COALESCE(last_accrued_cycle, '') <> ?
  `, dec(leave.AccruedBalance(current, rate, ceiling)), cycleID, formatTS(at), balanceID, raw, cycleID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		changed = n == 1
		return err
	})
	return changed, err
}

// DebitBalance reports false, without writing, when the balance is missing
// or smaller than days.
func (s *Store) DebitBalance(ctx context.Context, key leave.BalanceKey, days decimal.Decimal, at time.Time) (bool, error) {
	var ok bool
	err := s.withTx(ctx, func(tx *Store) error {
		var raw string
		err := tx.db.QueryRowContext(ctx, `
    SELECT balance
    FROM leave_balances
    WHERE employee_id = ? AND leave_type = ? AND fiscal_year = ?
  `, key.EmployeeID, key.LeaveType, key.FiscalYear).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		current, err := parseDec(raw)
		if err != nil {
			return err
		}
		if current.LessThan(days) {
			return nil
		}

		res, err := tx.db.ExecContext(ctx, `
    UPDATE leave_balances
    SET balance = ?, updated_at = ?
    WHERE employee_id = ? AND leave_type = ? AND fiscal_year = ? AND balance = ?
  `, dec(current.Sub(days)), formatTS(at), key.EmployeeID, key.LeaveType, key.FiscalYear, raw)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		ok = n == 1
		return err
	})
	return ok, err
}
