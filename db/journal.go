package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/physense-bridge/internal/model"
)

// Journal records bridge traffic in the events table. Write failures are logged and
// never reach the bridge.
type Journal struct {
	conn *sql.DB
	keep int
}

// NewJournal wraps conn. Prune trims the table to the newest keep rows; keep <= 0 disables
// retention.
func NewJournal(conn *sql.DB, keep int) *Journal {
	return &Journal{conn: conn, keep: keep}
}

func (j *Journal) Record(ev model.Event) {
	if _, err := InsertEvent(j.conn, ev); err != nil {
		log.Warn().Err(err).Str("device", ev.Device).Str("status", string(ev.Status)).Msg("Failed to journal event")
	}
}

func (j *Journal) Recent(limit int) ([]model.Event, error) {
	return RecentEvents(j.conn, limit)
}

func (j *Journal) StatusCounts() (map[model.EventStatus]int, error) {
	return CountEventsByStatus(j.conn)
}

func (j *Journal) Prune() (int64, error) {
	if j.keep <= 0 {
		return 0, nil
	}
	return PruneEvents(j.conn, j.keep)
}

// RunRetention prunes immediately and then every interval until ctx is cancelled.
func (j *Journal) RunRetention(ctx context.Context, interval time.Duration) {
	j.prune()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.prune()
		}
	}
}

func (j *Journal) prune() {
	removed, err := j.Prune()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to prune event journal")
		return
	}
	if removed > 0 {
		log.Info().Int64("removed", removed).Int("keep", j.keep).Msg("Pruned event journal")
	}
}
