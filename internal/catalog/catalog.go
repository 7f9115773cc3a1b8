// Package catalog keeps the ordered list of zman descriptors the engine
// evaluates, and binds it to the methods a calculator exposes.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	appLog "luachboard/internal/log"
	"luachboard/internal/model"
)

// CandleLightingID is the descriptor shown only on Fridays and Yom Tov
// eves.
const CandleLightingID = "candleLighting"

var defaultEntries = []struct{ id, label, method string }{
	{"sunrise", "Sunrise / נץ החמה", "getSunrise"},
	{"sunset", "Sunset / שקיעת החמה", "getSunset"},
	{"alos", "Alos Hashachar / עלות השחר", "getAlosHashachar"},
	{"misheyakir", "Misheyakir / משיכיר", "getMisheyakir10Point2Degrees"},
	{"sof-zman-shma-mga", `Sof Zman Shma (MGA) / סוף זמן שמע (מג"א)`, "getSofZmanShmaMGA"},
	{"sof-zman-shma-gra", `Sof Zman Shma (GRA) / סוף זמן שמע (הגר"א)`, "getSofZmanShmaGRA"},
	{"sof-zman-tfila-mga", `Sof Zman Tfila (MGA) / סוף זמן תפילה (מג"א)`, "getSofZmanTfilaMGA"},
	{"sof-zman-tfila-gra", `Sof Zman Tfila (GRA) / סוף זמן תפילה (הגר"א)`, "getSofZmanTfilaGRA"},
	{"chatzos", "Chatzos / חצות", "getChatzos"},
	{"mincha-gedola", "Mincha Gedola / מנחה גדולה", "getMinchaGedola"},
	{"mincha-ketana", "Mincha Ketana / מנחה קטנה", "getMinchaKetana"},
	{"plag-hamincha", "Plag Hamincha / פלג המנחה", "getPlagHamincha"},
	{"Tzeis-hakochavim", "Tzeis Hakochavim / צאת הכוכבים", "getTzais"},
	{"Tzeis-72", "Tzeis 72 / צאת 72", "getTzais72"},
	{"Tzeis-baal-hatanya", "Tzeis Baal Hatanya / צאת בעל התניא", "getTzaisBaalHatanya"},
	{CandleLightingID, "Candle Lighting / הדלקת נרות", "getCandleLighting"},
	{"plag-hamincha-gra", `Plag Hamincha (GRA) / פלג המנחה (הגר"א)`, "getPlagHaminchaGRA"},
}

// DefaultDescriptors is the built-in seed list.
func DefaultDescriptors() []model.ZmanDescriptor {
	out := make([]model.ZmanDescriptor, 0, len(defaultEntries))
	for _, e := range defaultEntries {
		out = append(out, model.ZmanDescriptor{ID: e.id, Label: model.ParseLabel(e.label), Method: e.method})
	}
	return out
}

// Catalog is an ordered, id-unique descriptor list. Every change bumps
// Version so bound tables can tell they are stale.
type Catalog struct {
	mu      sync.RWMutex
	list    []model.ZmanDescriptor
	index   map[string]int
	version uint64
}

// New builds a catalog from descs, rejecting duplicate or empty ids.
func New(descs []model.ZmanDescriptor) (*Catalog, error) {
	c := &Catalog{}
	if err := c.set(descs); err != nil {
		return nil, err
	}
	return c, nil
}

// Default returns a catalog holding the seed list.
func Default() *Catalog {
	c, err := New(DefaultDescriptors())
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) set(descs []model.ZmanDescriptor) error {
	index := make(map[string]int, len(descs))
	list := make([]model.ZmanDescriptor, 0, len(descs))
	for _, d := range descs {
		d.ID = strings.TrimSpace(d.ID)
		if d.ID == "" {
			return model.NewValidationError("zman id must not be empty")
		}
		if _, dup := index[d.ID]; dup {
			return model.NewValidationError(fmt.Sprintf("duplicate zman id %q", d.ID))
		}
		index[d.ID] = len(list)
		list = append(list, d)
	}
	c.list, c.index = list, index
	c.version++
	return nil
}

// Descriptors returns the list in catalog order.
func (c *Catalog) Descriptors() []model.ZmanDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]model.ZmanDescriptor(nil), c.list...)
}

// Get finds a descriptor by id.
func (c *Catalog) Get(id string) (model.ZmanDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[id]
	if !ok {
		return model.ZmanDescriptor{}, false
	}
	return c.list[i], true
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.list)
}

func (c *Catalog) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// AddDescriptor appends a descriptor built from the flat label form. It
// returns false, leaving the catalog unchanged, when id is taken.
func (c *Catalog) AddDescriptor(id, label, method string) bool {
	return c.Add(model.ZmanDescriptor{ID: id, Label: model.ParseLabel(label), Method: method}) == nil
}

// Add appends d.
func (c *Catalog) Add(d model.ZmanDescriptor) error {
	d.ID = strings.TrimSpace(d.ID)
	if d.ID == "" {
		return model.NewValidationError("zman id must not be empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.index[d.ID]; dup {
		return model.NewValidationError(fmt.Sprintf("duplicate zman id %q", d.ID))
	}
	c.index[d.ID] = len(c.list)
	c.list = append(c.list, d)
	c.version++
	return nil
}

// Replace swaps the whole list. On error the catalog is unchanged.
func (c *Catalog) Replace(descs []model.ZmanDescriptor) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prevList, prevIndex := c.list, c.index
	if err := c.set(descs); err != nil {
		c.list, c.index = prevList, prevIndex
		return err
	}
	return nil
}

// Record is the JSON form of a descriptor. Label may be the flat
// "English / Hebrew" string or an object {primary, secondary}.
type Record struct {
	ID     string    `json:"id"`
	Label  flexLabel `json:"label"`
	Method string    `json:"method,omitempty"`
	Param  *float64  `json:"param,omitempty"`
}

type flexLabel model.Label

func (l *flexLabel) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = flexLabel(model.ParseLabel(s))
		return nil
	}
	var structured model.Label
	if err := json.Unmarshal(data, &structured); err != nil {
		return err
	}
	*l = flexLabel(structured)
	return nil
}

// Parse decodes a JSON array of records.
func Parse(data []byte) ([]model.ZmanDescriptor, error) {
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, model.NewValidationError("catalog is not a JSON array of {id, label, method}: " + err.Error())
	}
	out := make([]model.ZmanDescriptor, 0, len(records))
	for _, r := range records {
		out = append(out, r.Descriptor())
	}
	return out, nil
}

// Descriptor converts the record.
func (r Record) Descriptor() model.ZmanDescriptor {
	return model.ZmanDescriptor{
		ID:     r.ID,
		Label:  model.Label(r.Label),
		Method: r.Method,
		Param:  r.Param,
	}
}

// LoadURL fetches a JSON catalog and replaces the list with it.
func (c *Catalog) LoadURL(ctx context.Context, f *Fetcher, url string) error {
	body, fromCache, err := f.Fetch(ctx, url)
	if err != nil {
		return model.NewResolutionError("fetch catalog", err)
	}
	descs, err := Parse(body)
	if err != nil {
		return err
	}
	if err := c.Replace(descs); err != nil {
		return err
	}
	appLog.Info("catalog loaded", "url", redactURL(url), "zmanim", len(descs), "from_cache", fromCache)
	return nil
}
