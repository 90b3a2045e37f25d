package history

import (
	"fmt"
	"math"
	"sort"
)

// KindStats summarizes task runs of one kind.
type KindStats struct {
	Kind     string  `json:"kind"`
	Total    int     `json:"total"`
	Success  int     `json:"success"`
	UpToDate int     `json:"up_to_date"`
	Failure  int     `json:"failure"`
	HitRate  float64 `json:"hit_rate_pct"`
	AvgMs    float64 `json:"avg_ms"`
	P95Ms    float64 `json:"p95_ms"`
}

// Stats returns per-kind task statistics for runs at or after since
// ("" for all time). Durations only cover tasks that actually ran.
func (d *DB) Stats(since string) ([]KindStats, error) {
	query := `SELECT kind, outcome, duration_ms FROM task_runs`
	var args []any
	if since != "" {
		query += ` WHERE timestamp >= ?`
		args = append(args, since)
	}

	rows, err := d.query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query task stats: %w", err)
	}
	defer rows.Close()

	byKind := make(map[string]*KindStats)
	durations := make(map[string][]float64)
	for rows.Next() {
		var kind, outcome string
		var ms int64
		if err := rows.Scan(&kind, &outcome, &ms); err != nil {
			return nil, fmt.Errorf("scan task stats: %w", err)
		}
		s, ok := byKind[kind]
		if !ok {
			s = &KindStats{Kind: kind}
			byKind[kind] = s
		}
		s.Total++
		switch outcome {
		case "success":
			s.Success++
		case "up-to-date":
			s.UpToDate++
			continue
		case "failure":
			s.Failure++
		}
		durations[kind] = append(durations[kind], float64(ms))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var results []KindStats
	for kind, s := range byKind {
		vals := durations[kind]
		sort.Float64s(vals)
		s.HitRate = pct(s.UpToDate, s.Total)
		s.AvgMs = avg(vals)
		s.P95Ms = percentile(vals, 95)
		results = append(results, *s)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Kind < results[j].Kind
	})
	return results, nil
}

// --- helpers ---

func avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return math.Round(sum/float64(len(values))*10) / 10
}

func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper || upper >= len(sorted) {
		return math.Round(sorted[lower]*10) / 10
	}
	weight := rank - float64(lower)
	return math.Round((sorted[lower]*(1-weight)+sorted[upper]*weight)*10) / 10
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}
