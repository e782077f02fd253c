package repository

import (
	"context"
	"database/sql"
	"time"

	"rinnai_bridge/internal/models"
)

type CounterSQLite struct {
	db *sql.DB
}

func NewCounterSQLite(db *sql.DB) *CounterSQLite {
	return &CounterSQLite{db: db}
}

// Ensure implementation of CounterRepo interface at compile time.
var _ CounterRepo = (*CounterSQLite)(nil)

const (
	upsertCountersSQL = `
		INSERT INTO device_counters (device_id, gas_used_m3, supply_time_hours,
			power_supply_hours, heating_burning_hours, hot_water_burning_hours,
			heating_burning_count, hot_water_burning_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			gas_used_m3=excluded.gas_used_m3,
			supply_time_hours=excluded.supply_time_hours,
			power_supply_hours=excluded.power_supply_hours,
			heating_burning_hours=excluded.heating_burning_hours,
			hot_water_burning_hours=excluded.hot_water_burning_hours,
			heating_burning_count=excluded.heating_burning_count,
			hot_water_burning_count=excluded.hot_water_burning_count,
			updated_at=excluded.updated_at
	`

	selectCountersSQL = `
		SELECT device_id, gas_used_m3, supply_time_hours, power_supply_hours,
			heating_burning_hours, hot_water_burning_hours,
			heating_burning_count, hot_water_burning_count
		FROM device_counters
	`
)

// Save upserts one row per device; the latest write wins.
func (r *CounterSQLite) Save(ctx context.Context, counters map[string]models.EnergyCounters) error {
	now := time.Now().UTC()
	for deviceID, c := range counters {
		_, err := r.db.ExecContext(ctx, upsertCountersSQL,
			deviceID,
			c.GasUsedCubicMeters,
			c.SupplyTimeHours,
			c.PowerSupplyHours,
			c.HeatingBurningHours,
			c.HotWaterBurningHours,
			c.HeatingBurningCount,
			c.HotWaterBurningCount,
			now,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// Load fetches the snapshot for every known device.
func (r *CounterSQLite) Load(ctx context.Context) (map[string]models.EnergyCounters, error) {
	rows, err := r.db.QueryContext(ctx, selectCountersSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]models.EnergyCounters)
	for rows.Next() {
		var (
			deviceID string
			c        models.EnergyCounters
		)
		if err := rows.Scan(
			&deviceID,
			&c.GasUsedCubicMeters,
			&c.SupplyTimeHours,
			&c.PowerSupplyHours,
			&c.HeatingBurningHours,
			&c.HotWaterBurningHours,
			&c.HeatingBurningCount,
			&c.HotWaterBurningCount,
		); err != nil {
			return nil, err
		}
		out[deviceID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
