package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
)

// scenarioMethod — служебная строка отчёта: один прогон сценария целиком.
const scenarioMethod = "scenario"

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	Mode              string                  `json:"mode"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	UnitsSold         int64                   `json:"units_sold"`
	Sales             int64                   `json:"sales"`
	RevenueMinor      int64                   `json:"revenue_minor"`
	AvgTicketMinor    int64                   `json:"avg_ticket_minor"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
}

// samples хранит задержки в миллисекундах.
type samples []float64

func (s samples) summary() latencySummary {
	if len(s) == 0 {
		return latencySummary{}
	}
	sorted := slices.Clone(s)
	slices.Sort(sorted)

	var total float64
	for _, v := range sorted {
		total += v
	}
	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: total / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

type callStats struct {
	ok, failed int64
	codes      map[string]int64
	latency    samples
}

func (s *callStats) observe(latency time.Duration, code codes.Code) {
	if code == codes.OK {
		s.ok++
	} else {
		s.failed++
	}
	s.codes[code.String()]++
	s.latency = append(s.latency, float64(latency.Microseconds())/1000)
}

func (s *callStats) report() methodReport {
	calls := s.ok + s.failed
	return methodReport{
		Calls:     calls,
		Success:   s.ok,
		Failed:    s.failed,
		ErrorRate: ratio(s.failed, calls),
		Codes:     maps.Clone(s.codes),
		LatencyMs: s.latency.summary(),
	}
}

// collector собирает замеры всех воркеров нагрузки.
type collector struct {
	mu      sync.Mutex
	calls   map[string]*callStats
	units   int64
	sales   int64
	revenue int64
}

func newCollector() *collector {
	return &collector{calls: make(map[string]*callStats)}
}

func (c *collector) record(method string, latency time.Duration, code codes.Code) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.calls[method]
	if stats == nil {
		stats = &callStats{codes: make(map[string]int64)}
		c.calls[method] = stats
	}
	stats.observe(latency, code)
}

// recordSale учитывает проданные единицы и сумму чека в минорных единицах.
func (c *collector) recordSale(units, totalMinor int64) {
	c.mu.Lock()
	c.units += units
	c.sales++
	c.revenue += totalMinor
	c.mu.Unlock()
}

func (c *collector) snapshot(method string) (methodReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if stats, ok := c.calls[method]; ok {
		return stats.report(), true
	}
	return methodReport{}, false
}

func (c *collector) buildReport(startedAt time.Time, elapsed time.Duration, mode loadMode) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := report{
		StartedAt:       startedAt.UTC(),
		Mode:            string(mode),
		DurationSeconds: elapsed.Seconds(),
		UnitsSold:       c.units,
		Sales:           c.sales,
		RevenueMinor:    c.revenue,
		Methods:         make(map[string]methodReport, len(c.calls)),
	}
	if c.sales > 0 {
		out.AvgTicketMinor = c.revenue / c.sales
	}
	for method, stats := range c.calls {
		out.Methods[method] = stats.report()
	}

	if scenario, ok := out.Methods[scenarioMethod]; ok {
		out.TotalScenarios = scenario.Calls
		out.SuccessScenarios = scenario.Success
		out.FailedScenarios = scenario.Failed
		out.ErrorRate = scenario.ErrorRate
		out.ScenarioLatencyMs = scenario.LatencyMs
	}
	if elapsed > 0 {
		out.RPS = float64(out.TotalScenarios) / elapsed.Seconds()
	}
	return out
}

func writeJSONReport(path string, result report) error {
	clean := filepath.Clean(path)
	switch {
	case clean == "." || clean == string(filepath.Separator):
		return errors.New("output path must point to a file")
	case clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)):
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	body, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	// #nosec G306 -- отчёт не содержит секретов.
	return os.WriteFile(clean, append(body, '\n'), 0o644)
}

func printReport(out io.Writer, result report, cfg config) {
	lines := []string{
		"Load test summary",
		fmt.Sprintf("mode=%s run=%s total=%d success=%d failed=%d error_rate=%.4f",
			cfg.mode, runTarget(cfg), result.TotalScenarios, result.SuccessScenarios, result.FailedScenarios, result.ErrorRate),
		fmt.Sprintf("duration=%.2fs rps=%.2f", result.DurationSeconds, result.RPS),
	}
	if result.UnitsSold > 0 {
		lines = append(lines, fmt.Sprintf("units_sold=%d revenue_minor=%d avg_ticket_minor=%d",
			result.UnitsSold, result.RevenueMinor, result.AvgTicketMinor))
	}
	lat := result.ScenarioLatencyMs
	lines = append(lines, fmt.Sprintf("scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f",
		lat.Min, lat.Avg, lat.P50, lat.P95, lat.P99, lat.Max))

	for _, method := range slices.Sorted(maps.Keys(result.Methods)) {
		if method == scenarioMethod {
			continue
		}
		m := result.Methods[method]
		lines = append(lines, fmt.Sprintf("%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms",
			method, m.Calls, m.Success, m.Failed, m.ErrorRate, m.LatencyMs.P95))
	}
	_, _ = io.WriteString(out, strings.Join(lines, "\n")+"\n")
}

func runTarget(cfg config) string {
	switch {
	case cfg.duration <= 0:
		return fmt.Sprintf("count:%d", cfg.total)
	case cfg.totalSet:
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	default:
		return "duration:" + cfg.duration.String()
	}
}

func buildLatencySummary(values []float64) latencySummary {
	return samples(values).summary()
}

// percentile интерполирует между соседними рангами отсортированной выборки.
func percentile(sorted []float64, p float64) float64 {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo, hi := int(math.Floor(rank)), int(math.Ceil(rank))
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}

func ratio(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total)
}
