// api/store/outcome_store.go
package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"convtrack/api/database"
	"convtrack/api/models"
	"convtrack/api/utils"
)

type OutcomeStore struct {
	DB *database.ClickHouseClient
}

type DeliveryCountByTime struct {
	Time      time.Time `json:"time"`
	EventName *string   `json:"eventName,omitempty"`
	Count     uint64    `json:"count"`
}

type ChannelSuccessRate struct {
	Channel   string  `json:"channel"`
	Attempts  uint64  `json:"attempts"`
	Successes uint64  `json:"successes"`
	Rate      float64 `json:"rate"`
}

type TopEventResult struct {
	EventName string `json:"eventName"`
	Count     uint64 `json:"count"`
}

func NewOutcomeStore(chClient *database.ClickHouseClient) *OutcomeStore {
	return &OutcomeStore{
		DB: chClient,
	}
}

func (s *OutcomeStore) InsertOutcomes(ctx context.Context, outcomes []models.DeliveryOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	batch, err := s.DB.Conn.PrepareBatch(ctx, `
		INSERT INTO delivery_outcomes (
			event_id, event_name, source, channel, success, duration_ms, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	for _, outcome := range outcomes {
		err := batch.Append(
			outcome.EventID,
			outcome.EventName,
			outcome.Source,
			outcome.Channel,
			outcome.Success,
			outcome.DurationMs,
			outcome.Timestamp,
		)
		if err != nil {
			log.Printf("Error appending outcome to batch (EventID: %s): %v", outcome.EventID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	return nil
}

func (s *OutcomeStore) GetDeliveryCountsOverTime(ctx context.Context, interval string, start, end time.Time, eventNameFilter string) ([]DeliveryCountByTime, error) {
	if !utils.IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	var args []interface{}
	args = append(args, start, end)

	selectCols := fmt.Sprintf("toStartOf%s(timestamp) as time_bucket, uniq(event_id) as delivered", interval)
	groupByCols := "time_bucket"
	whereClause := "WHERE success = 1 AND timestamp >= ? AND timestamp <= ?"
	orderByCols := "time_bucket ASC"
	isFilteringByName := eventNameFilter != ""

	if isFilteringByName {
		selectCols += ", event_name"
		groupByCols += ", event_name"
		whereClause += " AND event_name = ?"
		args = append(args, eventNameFilter)
		orderByCols += ", event_name ASC"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM delivery_outcomes
		%s
		GROUP BY %s
		ORDER BY %s
	`, selectCols, whereClause, groupByCols, orderByCols)

	rows, err := s.DB.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query delivery counts over time: %w", err)
	}
	defer rows.Close()

	var results []DeliveryCountByTime
	for rows.Next() {
		var (
			timeBucket  time.Time
			count       uint64
			eventNameDB string
			current     DeliveryCountByTime
		)

		if isFilteringByName {
			if err := rows.Scan(&timeBucket, &count, &eventNameDB); err != nil {
				log.Printf("Error scanning row for delivery counts (with name filter): %v", err)
				continue
			}
			current.EventName = &eventNameDB
		} else {
			if err := rows.Scan(&timeBucket, &count); err != nil {
				log.Printf("Error scanning row for delivery counts: %v", err)
				continue
			}
		}

		current.Time = timeBucket
		current.Count = count
		results = append(results, current)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during delivery counts query: %w", err)
	}

	return results, nil
}

func (s *OutcomeStore) GetChannelSuccessRates(ctx context.Context, start, end time.Time) ([]ChannelSuccessRate, error) {
	query := `
		SELECT channel, count() as attempts, countIf(success = 1) as successes
		FROM delivery_outcomes
		WHERE timestamp >= ? AND timestamp <= ?
		GROUP BY channel
		ORDER BY channel ASC
	`
	rows, err := s.DB.Conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query channel success rates: %w", err)
	}
	defer rows.Close()

	var results []ChannelSuccessRate
	for rows.Next() {
		var r ChannelSuccessRate
		if err := rows.Scan(&r.Channel, &r.Attempts, &r.Successes); err != nil {
			log.Printf("Error scanning row for channel success rates: %v", err)
			continue
		}
		if r.Attempts > 0 {
			r.Rate = float64(r.Successes) / float64(r.Attempts)
		}
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for channel success rates: %w", err)
	}

	return results, nil
}

func (s *OutcomeStore) GetTopEventNames(ctx context.Context, start, end time.Time, limit uint64) ([]TopEventResult, error) {
	if limit == 0 {
		limit = 10
	}

	query := `
		SELECT event_name, uniq(event_id) as delivered
		FROM delivery_outcomes
		WHERE success = 1 AND timestamp >= ? AND timestamp <= ?
		GROUP BY event_name
		ORDER BY delivered DESC
		LIMIT ?
	`
	rows, err := s.DB.Conn.Query(ctx, query, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top event names: %w", err)
	}
	defer rows.Close()

	var results []TopEventResult
	for rows.Next() {
		var r TopEventResult
		if err := rows.Scan(&r.EventName, &r.Count); err != nil {
			log.Printf("Error scanning row for top event names: %v", err)
			continue
		}
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for top event names: %w", err)
	}

	return results, nil
}
