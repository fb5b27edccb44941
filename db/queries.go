package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/thatsimonsguy/physense-bridge/internal/model"
)

// RecentEvents returns up to limit events, newest first.
func RecentEvents(db *sql.DB, limit int) ([]model.Event, error) {
	rows, err := db.Query(`SELECT id, direction, device, value, peer, status, created_at FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// EventsForDevice returns up to limit events for one device token, newest first.
func EventsForDevice(db *sql.DB, device string, limit int) ([]model.Event, error) {
	rows, err := db.Query(`SELECT id, direction, device, value, peer, status, created_at FROM events WHERE device = ? ORDER BY id DESC LIMIT ?`, device, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events for %s: %w", device, err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// CountEventsByStatus tallies journal rows per status.
func CountEventsByStatus(db *sql.DB) (map[model.EventStatus]int, error) {
	rows, err := db.Query(`SELECT status, COUNT(*) FROM events GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.EventStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan event count: %w", err)
		}
		counts[model.EventStatus(status)] = n
	}
	return counts, rows.Err()
}

func scanEvents(rows *sql.Rows) ([]model.Event, error) {
	var events []model.Event
	for rows.Next() {
		var ev model.Event
		var direction, status, createdAt string
		if err := rows.Scan(&ev.ID, &direction, &ev.Device, &ev.Value, &ev.Peer, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Direction = model.Direction(direction)
		ev.Status = model.EventStatus(status)
		ev.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		events = append(events, ev)
	}
	return events, rows.Err()
}
