package postgres

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"leaveflow/internal/domain/leave"
)

const balanceColumns = `id, employee_id, leave_type, fiscal_year, balance, accrual_rate, max_accrual,
      carry_over_limit, carried_over, carry_over_used, COALESCE(last_accrued_cycle, ''), updated_at`

func scanBalance(row rowScanner) (leave.LeaveBalance, error) {
	var b leave.LeaveBalance
	err := row.Scan(&b.ID, &b.EmployeeID, &b.LeaveType, &b.FiscalYear, &b.Balance, &b.AccrualRate, &b.MaxAccrual,
		&b.CarryOverLimit, &b.CarriedOver, &b.CarryOverUsed, &b.LastAccruedCycle, &b.UpdatedAt)
	return b, err
}

func (s *Store) GetBalance(ctx context.Context, key leave.BalanceKey) (leave.LeaveBalance, error) {
	b, err := scanBalance(s.DB.QueryRow(ctx, `
    SELECT `+balanceColumns+`
    FROM leave_balances
    WHERE employee_id = $1 AND leave_type = $2 AND fiscal_year = $3
  `, key.EmployeeID, key.LeaveType, key.FiscalYear))
	if err != nil {
		return leave.LeaveBalance{}, notFound(err, "balance", key.EmployeeID, key.LeaveType, itoa(key.FiscalYear))
	}
	return b, nil
}

func (s *Store) listBalances(ctx context.Context, where string, args ...any) ([]leave.LeaveBalance, error) {
	rows, err := s.DB.Query(ctx, `
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
	return s.listBalances(ctx, "employee_id = $1 AND fiscal_year = $2", employeeID, fiscalYear)
}

func (s *Store) ListBalancesForYear(ctx context.Context, fiscalYear int) ([]leave.LeaveBalance, error) {
	return s.listBalances(ctx, "fiscal_year = $1", fiscalYear)
}

func (s *Store) InsertBalance(ctx context.Context, b leave.LeaveBalance) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
    INSERT INTO leave_balances (id, employee_id, leave_type, fiscal_year, balance, accrual_rate, max_accrual,
      carry_over_limit, carried_over, carry_over_used, updated_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
    ON CONFLICT (employee_id, leave_type, fiscal_year) DO NOTHING
  `, b.ID, b.EmployeeID, b.LeaveType, b.FiscalYear, b.Balance, b.AccrualRate, b.MaxAccrual,
		b.CarryOverLimit, b.CarriedOver, b.CarryOverUsed, b.UpdatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) RefreshBalanceTerms(ctx context.Context, b leave.LeaveBalance) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE leave_balances
    SET accrual_rate = $1, max_accrual = $2, carry_over_limit = $3, updated_at = $4
    WHERE employee_id = $5 AND leave_type = $6 AND fiscal_year = $7
  `, b.AccrualRate, b.MaxAccrual, b.CarryOverLimit, b.UpdatedAt, b.EmployeeID, b.LeaveType, b.FiscalYear)
	return err
}

func (s *Store) AccrueBalance(ctx context.Context, balanceID, cycleID string, at time.Time) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
    UPDATE leave_balances
    SET balance = CASE
          WHEN max_accrual <= 0 THEN balance + accrual_rate
          WHEN balance >= max_accrual THEN balance
          WHEN balance + accrual_rate > max_accrual THEN max_accrual
          ELSE balance + accrual_rate
        END,
        last_accrued_cycle = $1,
        updated_at = $2
    WHERE id = $3 AND COALESCE(last_accrued_cycle, '') <> $1
  `, cycleID, at, balanceID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) DebitBalance(ctx context.Context, key leave.BalanceKey, days decimal.Decimal, at time.Time) (bool, error) {
	tag, err := s.DB.Exec(ctx, `
    UPDATE leave_balances
    SET balance = balance - $1, updated_at = $2
    WHERE employee_id = $3 AND leave_type = $4 AND fiscal_year = $5 AND balance >= $1
  `, days, at, key.EmployeeID, key.LeaveType, key.FiscalYear)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
