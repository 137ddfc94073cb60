package shared

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	day, err := ParseDate("2025-03-10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !day.Equal(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected day %v", day)
	}

	day, err = ParseDate("2025-03-10T23:30:00-02:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !day.Equal(time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected UTC day 2025-03-11, got %v", day)
	}

	if _, err := ParseDate("10/03/2025"); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestQueryHelpers(t *testing.T) {
	r := httptest.NewRequest("GET", "/x?limit=500&offset=10&fiscalYear=2025&status=approved,pending-hr&status=rejected", nil)

	page := ParsePagination(r, 50, 200)
	if page.Limit != 200 || page.Offset != 10 {
		t.Fatalf("unexpected pagination %+v", page)
	}
	if year, ok := QueryInt(r, "fiscalYear", 0); !ok || year != 2025 {
		t.Fatalf("unexpected fiscal year %d %v", year, ok)
	}
	if v, ok := QueryInt(r, "missing", 7); !ok || v != 7 {
		t.Fatalf("expected fallback, got %d %v", v, ok)
	}
	statuses := QueryList(r, "status")
	if len(statuses) != 3 || statuses[2] != "rejected" {
		t.Fatalf("unexpected statuses %v", statuses)
	}

	bad := httptest.NewRequest("GET", "/x?fiscalYear=abc", nil)
	if _, ok := QueryInt(bad, "fiscalYear", 0); ok {
		t.Fatal("expected malformed int to be rejected")
	}
}

func TestValidatorCollectsSortedIssues(t *testing.T) {
	v := NewValidator()
	v.Required("leaveType", " ", "is required")
	start, _ := v.Date("startDate", "2025-03-10")
	end, _ := v.Date("endDate", "2025-03-08")
	v.DateOrder("startDate", start, "endDate", end)

	issues := v.Issues()
	if len(issues) != 3 {
		t.Fatalf("expected 3 issues, got %+v", issues)
	}
	if issues[0].Field != "endDate" || issues[1].Field != "leaveType" || issues[2].Field != "startDate" {
		t.Fatalf("unexpected order %+v", issues)
	}
}

func TestValidatorBounds(t *testing.T) {
	v := NewValidator()
	v.MaxLength("notes", "ééé", 3)
	v.Year("fiscalYear", 0, 1900, 2030)
	v.Year("toYear", 2025, 1900, 2030)
	if v.HasIssues() {
		t.Fatalf("expected no issues, got %+v", v.Issues())
	}

	v.MaxLength("notes", "abcd", 3)
	v.Year("toYear", 1800, 1900, 2030)
	issues := v.Issues()
	if len(issues) != 2 || issues[0].Reason != "must be at most 3 characters" || issues[1].Reason != "must be between 1900 and 2030" {
		t.Fatalf("unexpected issues %+v", issues)
	}
}
