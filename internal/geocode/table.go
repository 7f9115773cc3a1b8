package geocode

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	appLog "luachboard/internal/log"
)

type zipEntry struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	City  string  `json:"city"`
	State string  `json:"state"`
}

// Table is the offline zip code table. The file is read on first lookup
// and kept for the life of the process; a missing or unreadable file
// leaves the table empty.
type Table struct {
	path    string
	once    sync.Once
	entries map[string]zipEntry
}

// NewTable returns a lazily loaded table. An empty path gives an empty
// table.
func NewTable(path string) *Table {
	return &Table{path: path}
}

// NewTableFromEntries builds a preloaded table, mostly for tests.
func NewTableFromEntries(entries map[string]Place) *Table {
	t := &Table{entries: make(map[string]zipEntry, len(entries))}
	for zip, p := range entries {
		city, state, _ := strings.Cut(p.Name, ", ")
		t.entries[zip] = zipEntry{Lat: p.Latitude, Lng: p.Longitude, City: city, State: state}
	}
	t.once.Do(func() {})
	return t
}

// Lookup finds zip, trying the five digit prefix of a zip+4.
func (t *Table) Lookup(zip string) (Place, bool) {
	t.once.Do(t.load)
	e, ok := t.entries[zip]
	if !ok && len(zip) > 5 {
		e, ok = t.entries[zip[:5]]
	}
	if !ok {
		return Place{}, false
	}
	return Place{
		Name:      cityState(e.City, e.State),
		Latitude:  e.Lat,
		Longitude: e.Lng,
		Provider:  providerLocal,
	}, true
}

// Len reports the number of loaded zip codes.
func (t *Table) Len() int {
	t.once.Do(t.load)
	return len(t.entries)
}

func (t *Table) load() {
	t.entries = map[string]zipEntry{}
	if t.path == "" {
		return
	}
	data, err := os.ReadFile(t.path)
	if err != nil {
		appLog.Warn("offline zip table unavailable", "path", t.path, "err", err.Error())
		return
	}
	entries, err := parseTable(data)
	if err != nil {
		appLog.Error("offline zip table unreadable", err, "path", t.path)
		return
	}
	t.entries = entries
	appLog.Info("offline zip table loaded", "path", t.path, "zips", len(entries))
}

// parseTable accepts a JSON object keyed by zip or a GeoNames postal code
// dump (tab separated, zip in column 2, place in 3, state code in 5,
// latitude and longitude in 10 and 11).
func parseTable(data []byte) (map[string]zipEntry, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		entries := map[string]zipEntry{}
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, err
		}
		return entries, nil
	}

	entries := map[string]zipEntry{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		cols := strings.Split(text, "\t")
		if len(cols) < 11 {
			return nil, fmt.Errorf("line %d: expected at least 11 columns, got %d", line, len(cols))
		}
		lat, lng, err := parsePair(cols[9], cols[10])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		entries[cols[1]] = zipEntry{Lat: lat, Lng: lng, City: cols[2], State: cols[4]}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

