package audit

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGStoreAppend(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(`insert into audit_logs`).
		WithArgs(sqlmock.AnyArg(), "u-1", "UPDATE", "patients", "p-1",
			[]byte(`{"ward":"7"}`), sqlmock.AnyArg(), "10.0.0.1", "curl/8", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPGStore(db)
	e := Entry{
		UserID:     "u-1",
		Action:     ActionUpdate,
		Resource:   "patients",
		ResourceID: "p-1",
		OldValues:  map[string]any{"ward": "7"},
		NewValues:  map[string]any{"ward": "9"},
		IPAddress:  "10.0.0.1",
		UserAgent:  "curl/8",
		Timestamp:  at,
	}
	if err := store.Append(context.Background(), &e); err != nil {
		t.Fatalf("append: %v", err)
	}
	if e.ID == "" {
		t.Fatal("append did not assign an id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPGStoreAppendEmptyValuesNull(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	// empty maps must go to the driver as nil, not "{}" or "null"
	mock.ExpectExec(`insert into audit_logs`).
		WithArgs(sqlmock.AnyArg(), "", "LOGIN", "authentication", "",
			nil, nil, "", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPGStore(db)
	e := Entry{Action: ActionLogin, Resource: "authentication", Timestamp: time.Now()}
	if err := store.Append(context.Background(), &e); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPGStoreQueryBuildsFilters(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "action", "resource", "resource_id",
		"old_values", "new_values", "ip_address", "user_agent", "occurred_at",
	}).AddRow("e-1", "u-1", "READ", "patients", "p-1",
		nil, []byte(`{"ward":"7"}`), "10.0.0.1", "curl/8", at)

	mock.ExpectQuery(`(?s)select .+ from audit_logs where resource=\$1 and user_id=\$2 and action in \(\$3,\$4\) order by occurred_at desc, id desc limit \$5 offset \$6`).
		WithArgs("patients", "u-1", "READ", "UPDATE", 50, 10).
		WillReturnRows(rows)

	store := NewPGStore(db)
	entries, err := store.Query(context.Background(), Query{
		Resource: "patients",
		UserID:   "u-1",
		Actions:  []Action{ActionRead, ActionUpdate},
		Limit:    50,
		Offset:   10,
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0].NewValues["ward"] != "7" {
		t.Fatalf("new values not decoded: %+v", entries[0].NewValues)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPGStoreSummarize(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`select action, resource, count\(\*\) from audit_logs`).
		WithArgs(start, end, "patients").
		WillReturnRows(sqlmock.NewRows([]string{"action", "resource", "count"}).
			AddRow("READ", "patients", 12).
			AddRow("UPDATE", "patients", 3))
	mock.ExpectQuery(`group by user_id order by count\(\*\) desc limit 10`).
		WithArgs(start, end, "patients").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "count"}).
			AddRow("doc-1", 9).
			AddRow("doc-2", 6))

	store := NewPGStore(db)
	sum, err := store.Summarize(context.Background(), start, end, "patients")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if sum.TotalEvents != 15 {
		t.Fatalf("total = %d, want 15", sum.TotalEvents)
	}
	if len(sum.ActionSummary) != 2 || sum.ActionSummary[0].Count != 12 {
		t.Fatalf("action summary: %+v", sum.ActionSummary)
	}
	if len(sum.TopActiveUsers) != 2 || sum.TopActiveUsers[0].UserID != "doc-1" {
		t.Fatalf("top users: %+v", sum.TopActiveUsers)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPGStoreDeleteOlderThan(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	cutoff := time.Date(2019, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`delete from audit_logs where occurred_at < \$1`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 42))

	store := NewPGStore(db)
	deleted, err := store.DeleteOlderThan(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != 42 {
		t.Fatalf("deleted = %d, want 42", deleted)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
