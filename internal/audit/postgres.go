package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"medcare.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Append(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = ids.New()
	}
	oldValues, err := marshalValues(e.OldValues)
	if err != nil {
		return err
	}
	newValues, err := marshalValues(e.NewValues)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`insert into audit_logs(id, user_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, occurred_at)
		 values($1, nullif($2,''), $3, $4, nullif($5,''), $6, $7, nullif($8,''), nullif($9,''), $10)`,
		e.ID, e.UserID, e.Action, e.Resource, e.ResourceID,
		oldValues, newValues, e.IPAddress, e.UserAgent, e.Timestamp.UTC())
	return err
}

// marshalValues returns an untyped nil for empty maps so the driver writes
// SQL NULL rather than an empty jsonb payload. A nil []byte would not do: it
// still carries the type and fails the NULL comparison.
func marshalValues(v map[string]any) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}

func (s *PGStore) Query(ctx context.Context, q Query) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if q.Resource != "" {
		add("resource=$%d", q.Resource)
	}
	if q.ResourceID != "" {
		add("resource_id=$%d", q.ResourceID)
	}
	if q.UserID != "" {
		add("user_id=$%d", q.UserID)
	}
	if !q.StartDate.IsZero() {
		add("occurred_at >= $%d", q.StartDate.UTC())
	}
	if !q.EndDate.IsZero() {
		add("occurred_at <= $%d", q.EndDate.UTC())
	}
	if len(q.Actions) > 0 {
		placeholders := make([]string, len(q.Actions))
		for i, a := range q.Actions {
			args = append(args, string(a))
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		where = append(where, "action in ("+strings.Join(placeholders, ",")+")")
	}

	query := `select id, coalesce(user_id,''), action, resource, coalesce(resource_id,''),
		old_values, new_values, coalesce(ip_address,''), coalesce(user_agent,''), occurred_at
		from audit_logs`
	if len(where) > 0 {
		query += " where " + strings.Join(where, " and ")
	}
	query += " order by occurred_at desc, id desc"
	args = append(args, q.Limit)
	query += fmt.Sprintf(" limit $%d", len(args))
	args = append(args, q.Offset)
	query += fmt.Sprintf(" offset $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			oldBytes []byte
			newBytes []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.Resource, &e.ResourceID,
			&oldBytes, &newBytes, &e.IPAddress, &e.UserAgent, &e.Timestamp); err != nil {
			return nil, err
		}
		if len(oldBytes) > 0 {
			_ = json.Unmarshal(oldBytes, &e.OldValues)
		}
		if len(newBytes) > 0 {
			_ = json.Unmarshal(newBytes, &e.NewValues)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PGStore) Summarize(ctx context.Context, start, end time.Time, resource string) (Summary, error) {
	var summary Summary

	query := `select action, resource, count(*) from audit_logs
		where occurred_at >= $1 and occurred_at <= $2`
	args := []any{start.UTC(), end.UTC()}
	if resource != "" {
		args = append(args, resource)
		query += fmt.Sprintf(" and resource=$%d", len(args))
	}
	query += " group by action, resource order by count(*) desc"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Summary{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var row SummaryRow
		if err := rows.Scan(&row.Action, &row.Resource, &row.Count); err != nil {
			return Summary{}, err
		}
		summary.ActionSummary = append(summary.ActionSummary, row)
		summary.TotalEvents += row.Count
	}
	if err := rows.Err(); err != nil {
		return Summary{}, err
	}

	actorQuery := `select coalesce(user_id,''), count(*) from audit_logs
		where occurred_at >= $1 and occurred_at <= $2 and user_id is not null`
	actorArgs := []any{start.UTC(), end.UTC()}
	if resource != "" {
		actorArgs = append(actorArgs, resource)
		actorQuery += fmt.Sprintf(" and resource=$%d", len(actorArgs))
	}
	actorQuery += " group by user_id order by count(*) desc limit 10"

	actorRows, err := s.db.QueryContext(ctx, actorQuery, actorArgs...)
	if err != nil {
		return Summary{}, err
	}
	defer actorRows.Close()
	for actorRows.Next() {
		var row ActorRow
		if err := actorRows.Scan(&row.UserID, &row.Count); err != nil {
			return Summary{}, err
		}
		summary.TopActiveUsers = append(summary.TopActiveUsers, row)
	}
	return summary, actorRows.Err()
}

func (s *PGStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from audit_logs where occurred_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
