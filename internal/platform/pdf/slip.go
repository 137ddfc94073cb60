// Package pdf renders the printable leave slip of an approved request.
package pdf

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"

	"leaveflow/internal/domain/leave"
)

const dateLayout = "2006-01-02"

func RenderSlip(w io.Writer, req leave.LeaveRequest, emp leave.Employee) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Leave slip "+req.ID, true)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Leave Slip")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	line := func(format string, args ...any) {
		pdf.Cell(0, 8, fmt.Sprintf(format, args...))
		pdf.Ln(7)
	}
	line("Request: %s", req.ID)
	line("Employee: %s (%s)", emp.Name, emp.ID)
	if emp.Email != "" {
		line("Email: %s", emp.Email)
	}
	line("Department: %s  Branch: %s", req.DepartmentID, req.BranchID)
	pdf.Ln(3)
	line("Leave type: %s", req.LeaveType)
	line("Period: %s to %s", req.StartDate.Format(dateLayout), req.EndDate.Format(dateLayout))
	line("Days: %d  Fiscal year: %d", req.TotalDays, req.FiscalYear)
	if req.ReliefOfficerID != "" {
		line("Relief officer: %s", req.ReliefOfficerID)
	}
	line("Status: %s", req.Status)
	pdf.Ln(5)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Approval history")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	for _, e := range req.History {
		pdf.Cell(0, 6, fmt.Sprintf("%d. %s  %s by %s (%s): %s -> %s",
			e.Seq, e.Timestamp.UTC().Format("2006-01-02 15:04"), e.Action, e.ActorID, e.Role, e.FromStatus, e.ToStatus))
		pdf.Ln(6)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render leave slip: %w", err)
	}
	return nil
}
