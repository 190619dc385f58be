package metrics

import (
	"database/sql"
	"sync"
	"time"
)

// DBPoolStats holds database/sql pool statistics.
type DBPoolStats struct {
	OpenConnections    int           `json:"open_connections"`
	InUse              int           `json:"in_use"`
	Idle               int           `json:"idle"`
	MaxOpenConnections int           `json:"max_open_connections"`
	WaitCount          int64         `json:"wait_count"`
	WaitDuration       time.Duration `json:"wait_duration"`
}

func (s DBPoolStats) ToMap() map[string]any {
	return map[string]any{
		"open_connections":     s.OpenConnections,
		"in_use":               s.InUse,
		"idle":                 s.Idle,
		"max_open_connections": s.MaxOpenConnections,
		"wait_count":           s.WaitCount,
		"wait_duration_ms":     s.WaitDuration.Milliseconds(),
		"utilization":          s.Utilization(),
	}
}

func (s DBPoolStats) Utilization() float64 {
	if s.MaxOpenConnections == 0 {
		return 0
	}
	return float64(s.InUse) / float64(s.MaxOpenConnections)
}

func GetDBPoolStats(db *sql.DB) DBPoolStats {
	if db == nil {
		return DBPoolStats{}
	}
	st := db.Stats()
	return DBPoolStats{
		OpenConnections:    st.OpenConnections,
		InUse:              st.InUse,
		Idle:               st.Idle,
		MaxOpenConnections: st.MaxOpenConnections,
		WaitCount:          st.WaitCount,
		WaitDuration:       st.WaitDuration,
	}
}

var (
	poolsMu sync.RWMutex
	pools   = map[string]*sql.DB{}
)

// RegisterPool makes a pool visible to AllPoolStats.
func RegisterPool(name string, db *sql.DB) {
	poolsMu.Lock()
	pools[name] = db
	poolsMu.Unlock()
}

func AllPoolStats() map[string]any {
	poolsMu.RLock()
	defer poolsMu.RUnlock()

	out := make(map[string]any, len(pools))
	for name, db := range pools {
		out[name] = GetDBPoolStats(db).ToMap()
	}
	return out
}
