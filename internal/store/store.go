package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gps-fleet-backend/internal/gpsbuddy"
	"gps-fleet-backend/internal/model"
)

const (
	defaultHistoryLimit = 500
	maxPageSize         = 50
)

// UpsertResult reports what a batch persistence pass changed.
type UpsertResult struct {
	Updated         int `json:"updated"`
	HistoryInserted int `json:"historyInserted"`
}

// HistoryQuery filters a per-vehicle history read. A nil Since/Until means
// an open range; Limit bounds the row count for the non-paginated read.
type HistoryQuery struct {
	Since *time.Time
	Until *time.Time
	Limit int
}

// HistoryPage is one page of history rows in ascending time order.
type HistoryPage struct {
	Rows     []model.VehicleHistory `json:"rows"`
	Total    int64                  `json:"total"`
	Page     int                    `json:"page"`
	PageSize int                    `json:"pageSize"`
}

// Store defines the persistence operations for vehicle telemetry.
type Store interface {
	DB() *gorm.DB
	UpsertLastAndHistory(ctx context.Context, vehicles []gpsbuddy.VehicleTelemetry) (UpsertResult, error)
	GetLastAll(ctx context.Context) ([]model.VehicleState, error)
	GetLastByVehicleID(ctx context.Context, vehicleID int64) (*model.VehicleState, error)
	GetHistory(ctx context.Context, vehicleID int64, q HistoryQuery) ([]model.VehicleHistory, error)
	GetHistoryPage(ctx context.Context, vehicleID int64, q HistoryQuery, page, pageSize int) (*HistoryPage, error)
	DeleteHistoryOlderThan(ctx context.Context, days int) (int64, error)
	GetTodayStartValues(ctx context.Context, dayStart time.Time) (map[int64]model.VehicleHistory, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// DB exposes the underlying connection for handlers and the worker pool.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// UpsertLastAndHistory overwrites the last known state of every vehicle in
// the batch and appends a history row for each record carrying a telemetry
// timestamp. The whole batch runs in one transaction: a failure mid-batch
// must not leave last-state and history diverged.
func (s *gormStore) UpsertLastAndHistory(ctx context.Context, vehicles []gpsbuddy.VehicleTelemetry) (UpsertResult, error) {
	if len(vehicles) == 0 {
		return UpsertResult{}, nil
	}

	now := time.Now().UTC()
	states := make([]model.VehicleState, 0, len(vehicles))
	// A poll may report the same vehicle more than once; keep only the
	// newest reading per vehicle — a multi-row upsert must not touch the
	// same row twice.
	stateIdx := make(map[int64]int, len(vehicles))
	var histories []model.VehicleHistory
	for _, v := range vehicles {
		if idx, ok := stateIdx[v.VehicleID]; ok {
			if newerReading(v.TimeIndicator, states[idx].TimeIndicator) {
				states[idx] = stateFromTelemetry(v, now)
			}
		} else {
			stateIdx[v.VehicleID] = len(states)
			states = append(states, stateFromTelemetry(v, now))
		}
		if v.TimeIndicator != nil {
			histories = append(histories, historyFromTelemetry(v))
		}
	}

	var result UpsertResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "vehicle_id"}},
			UpdateAll: true,
		}).Create(&states).Error; err != nil {
			return fmt.Errorf("failed to upsert vehicle states: %w", err)
		}
		result.Updated = len(states)

		if len(histories) > 0 {
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "vehicle_id"}, {Name: "time_indicator"}},
				DoNothing: true,
			}).Create(&histories)
			if res.Error != nil {
				return fmt.Errorf("failed to insert history rows: %w", res.Error)
			}
			result.HistoryInserted = int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return UpsertResult{}, err
	}
	return result, nil
}

// GetLastAll returns every last known state ordered by plate,
// case-insensitively.
func (s *gormStore) GetLastAll(ctx context.Context) ([]model.VehicleState, error) {
	var states []model.VehicleState
	if err := s.db.WithContext(ctx).Order("LOWER(plate)").Find(&states).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch vehicle states: %w", err)
	}
	return states, nil
}

// GetLastByVehicleID returns a single vehicle's last known state.
func (s *gormStore) GetLastByVehicleID(ctx context.Context, vehicleID int64) (*model.VehicleState, error) {
	var state model.VehicleState
	if err := s.db.WithContext(ctx).First(&state, "vehicle_id = ?", vehicleID).Error; err != nil {
		return nil, err
	}
	return &state, nil
}

// GetHistory returns history rows in ascending time order. When no range is
// given, the most recent Limit rows are fetched descending and reversed, so
// callers always get chronological order.
func (s *gormStore) GetHistory(ctx context.Context, vehicleID int64, q HistoryQuery) ([]model.VehicleHistory, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	query := s.db.WithContext(ctx).
		Where("vehicle_id = ? AND time_indicator IS NOT NULL", vehicleID)

	var rows []model.VehicleHistory
	if q.Since == nil && q.Until == nil {
		if err := query.Order("time_indicator DESC").Limit(limit).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("failed to fetch history: %w", err)
		}
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
		return rows, nil
	}

	query = applyRange(query, q)
	if err := query.Order("time_indicator ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}
	return rows, nil
}

// GetHistoryPage returns one ascending page of history rows with the total
// row count for the filtered set. Page size is capped at 50.
func (s *gormStore) GetHistoryPage(ctx context.Context, vehicleID int64, q HistoryQuery, page, pageSize int) (*HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	// Session gives the count and page reads independent statements.
	base := applyRange(s.db.WithContext(ctx).
		Model(&model.VehicleHistory{}).
		Where("vehicle_id = ? AND time_indicator IS NOT NULL", vehicleID), q).
		Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count history: %w", err)
	}

	var rows []model.VehicleHistory
	if err := base.
		Order("time_indicator ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch history page: %w", err)
	}

	return &HistoryPage{Rows: rows, Total: total, Page: page, PageSize: pageSize}, nil
}

// newerReading reports whether cand should replace existing; a reading
// without a timestamp never displaces one that has it.
func newerReading(cand, existing *time.Time) bool {
	if cand == nil {
		return false
	}
	if existing == nil {
		return true
	}
	return cand.After(*existing)
}

func applyRange(query *gorm.DB, q HistoryQuery) *gorm.DB {
	if q.Since != nil {
		query = query.Where("time_indicator >= ?", *q.Since)
	}
	if q.Until != nil {
		query = query.Where("time_indicator <= ?", *q.Until)
	}
	return query
}

// DeleteHistoryOlderThan removes history rows whose telemetry timestamp is
// older than now minus the given number of days. Rows without a timestamp
// are never touched. A non-positive days is a no-op.
func (s *gormStore) DeleteHistoryOlderThan(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	res := s.db.WithContext(ctx).
		Where("time_indicator IS NOT NULL AND time_indicator < ?", cutoff).
		Delete(&model.VehicleHistory{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune history: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// GetTodayStartValues returns, per vehicle, the earliest history row at or
// after the local-day start. These rows carry the cumulative-counter
// baselines for daily-delta computation.
func (s *gormStore) GetTodayStartValues(ctx context.Context, dayStart time.Time) (map[int64]model.VehicleHistory, error) {
	var rows []model.VehicleHistory
	if err := s.db.WithContext(ctx).
		Where("time_indicator IS NOT NULL AND time_indicator >= ?", dayStart).
		Order("time_indicator ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch day-start rows: %w", err)
	}

	starts := make(map[int64]model.VehicleHistory, len(rows))
	for _, row := range rows {
		if _, seen := starts[row.VehicleID]; !seen {
			starts[row.VehicleID] = row
		}
	}
	return starts, nil
}

func stateFromTelemetry(v gpsbuddy.VehicleTelemetry, now time.Time) model.VehicleState {
	return model.VehicleState{
		VehicleID:       v.VehicleID,
		Plate:           v.Plate,
		DriverName:      v.DriverName,
		Latitude:        v.Latitude,
		Longitude:       v.Longitude,
		Velocity:        v.Velocity,
		Address:         v.Address,
		Location:        v.Location,
		Direction:       v.Direction,
		TimeIndicator:   v.TimeIndicator,
		DriveTime:       v.DriveTime,
		WorkTime:        v.WorkTime,
		IdleTime:        v.IdleTime,
		StopTime:        v.StopTime,
		TotalDistance:   v.TotalDistance,
		StartKm:         v.StartKm,
		Flags:           v.Flags,
		CommunicationOK: v.CommunicationOK,
		ColorCode:       v.ColorCode,
		UpdatedAt:       now,
	}
}

func historyFromTelemetry(v gpsbuddy.VehicleTelemetry) model.VehicleHistory {
	return model.VehicleHistory{
		VehicleID:       v.VehicleID,
		TimeIndicator:   v.TimeIndicator,
		Plate:           v.Plate,
		DriverName:      v.DriverName,
		Latitude:        v.Latitude,
		Longitude:       v.Longitude,
		Velocity:        v.Velocity,
		Address:         v.Address,
		Location:        v.Location,
		Direction:       v.Direction,
		DriveTime:       v.DriveTime,
		WorkTime:        v.WorkTime,
		IdleTime:        v.IdleTime,
		StopTime:        v.StopTime,
		TotalDistance:   v.TotalDistance,
		StartKm:         v.StartKm,
		Flags:           v.Flags,
		CommunicationOK: v.CommunicationOK,
		ColorCode:       v.ColorCode,
	}
}
