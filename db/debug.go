package db

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/thatsimonsguy/physense-bridge/internal/model"
)

// PrintHistoryCLI writes the newest events from the journal at dbPath, oldest first,
// followed by the per-status totals for the whole journal.
func PrintHistoryCLI(w io.Writer, dbPath, device string, limit int) error {
	conn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	var events []model.Event
	if device != "" {
		events, err = EventsForDevice(conn, device, limit)
	} else {
		events, err = RecentEvents(conn, limit)
	}
	if err != nil {
		return err
	}

	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		fmt.Fprintf(w, "%s  %-3s %-11s %-10s %-8s %s\n",
			ev.CreatedAt.Local().Format(time.DateTime), ev.Direction, ev.Status, ev.Device, ev.Value, ev.Peer)
	}

	counts, err := CountEventsByStatus(conn)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "Totals:", formatCounts(counts))
	return nil
}

func formatCounts(counts map[model.EventStatus]int) string {
	parts := make([]string, 0, len(counts))
	for status, n := range counts {
		parts = append(parts, fmt.Sprintf("%s=%d", status, n))
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}
