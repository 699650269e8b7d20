package store

import (
	"context"
	"fmt"
	"strings"
)

// EventProcessed reports whether a source event (an alert email) was already handled.
func (d *DB) EventProcessed(ctx context.Context, eventID string) (bool, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return false, nil
	}
	ok, err := d.any(ctx, `SELECT 1 FROM email_tracking WHERE email_id = ? LIMIT 1;`, eventID)
	if err != nil {
		return false, fmt.Errorf("event processed: %w", err)
	}
	return ok, nil
}

// MarkEventProcessed records the event once; later calls are no-ops.
func (d *DB) MarkEventProcessed(ctx context.Context, eventID, source string) error {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil
	}
	_, err := d.Pool.ExecContext(ctx, `
INSERT OR IGNORE INTO email_tracking(email_id, source, processed_at)
VALUES(?,?,?);`, eventID, source, formatTS(d.now()))
	if err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	return nil
}
