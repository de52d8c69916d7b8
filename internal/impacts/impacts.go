// Package impacts loads precomputed nationwide impacts of reforms and serves
// lookups by reform key.
package impacts

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/3cpo-dev/saltamt/internal/core"
)

// Record holds the metrics of one reform against one baseline in one year.
type Record struct {
	ReformKey string             `json:"reform_key"`
	Baseline  string             `json:"baseline"`
	Year      int                `json:"year"`
	Metrics   map[string]float64 `json:"metrics"`
}

// Required key columns.
const (
	colReformKey = "reform_key"
	colBaseline  = "baseline"
	colYear      = "year"
)

// LoadCSV parses an impacts table. The header must name reform_key,
// baseline and year; every other column is a numeric metric. Empty metric
// cells are omitted from the record.
func LoadCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read impacts header: %w", err)
	}
	idx := map[string]int{}
	keys := make([]string, len(headers))
	for i, h := range headers {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		keys[i] = key
		if _, dup := idx[key]; dup {
			return nil, fmt.Errorf("duplicate column %q", key)
		}
		idx[key] = i
	}
	for _, col := range []string{colReformKey, colBaseline, colYear} {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("impacts header missing %q", col)
		}
	}

	var records []Record
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read impacts: %w", err)
		}
		line, _ := reader.FieldPos(0)
		year, err := strconv.Atoi(strings.TrimSpace(row[idx[colYear]]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid year %q", line, row[idx[colYear]])
		}
		rec := Record{
			ReformKey: strings.TrimSpace(row[idx[colReformKey]]),
			Baseline:  strings.TrimSpace(row[idx[colBaseline]]),
			Year:      year,
			Metrics:   map[string]float64{},
		}
		if rec.ReformKey == "" || rec.Baseline == "" {
			return nil, fmt.Errorf("line %d: reform_key and baseline are required", line)
		}
		for i, key := range keys {
			if key == colReformKey || key == colBaseline || key == colYear {
				continue
			}
			raw := strings.TrimSpace(row[i])
			if raw == "" {
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: column %s: invalid number %q", line, key, raw)
			}
			rec.Metrics[key] = v
		}
		records = append(records, rec)
	}
	return records, nil
}

// LoadFile parses the impacts table at path.
func LoadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadCSV(f)
}

// Import writes records into the store and returns the number of metric
// values stored.
func Import(ctx context.Context, store *core.Store, records []Record) (int, error) {
	var rows []core.ImpactRow
	for _, r := range records {
		for metric, v := range r.Metrics {
			rows = append(rows, core.ImpactRow{
				ReformKey: r.ReformKey,
				Baseline:  r.Baseline,
				Year:      r.Year,
				Metric:    metric,
				Value:     v,
			})
		}
	}
	if err := store.PutImpacts(ctx, rows); err != nil {
		return 0, fmt.Errorf("import impacts: %w", err)
	}
	log.Info().Int("records", len(records)).Int("values", len(rows)).Msg("Imported impacts")
	return len(rows), nil
}

// ImportFile loads the table at path into the store.
func ImportFile(ctx context.Context, store *core.Store, path string) (int, error) {
	records, err := LoadFile(path)
	if err != nil {
		return 0, err
	}
	return Import(ctx, store, records)
}

// Lookup returns the stored impacts of a reform. The boolean is false when
// nothing was imported for it.
func Lookup(ctx context.Context, store *core.Store, reformKey, baseline string, year int) (Record, bool, error) {
	m, err := store.Impacts(ctx, reformKey, baseline, year)
	if err != nil {
		return Record{}, false, err
	}
	if len(m) == 0 {
		return Record{}, false, nil
	}
	return Record{ReformKey: reformKey, Baseline: baseline, Year: year, Metrics: m}, true, nil
}

// MetricNames returns the record's metric names sorted.
func (r Record) MetricNames() []string {
	names := make([]string, 0, len(r.Metrics))
	for n := range r.Metrics {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
