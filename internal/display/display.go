// Package display turns computed zmanim into the ordered rows a board
// shows.
package display

import (
	"sort"

	"luachboard/internal/model"
)

// Row is one line on the board.
type Row struct {
	ID    string          `json:"id"`
	Label string          `json:"label"`
	Value model.ZmanValue `json:"-"`
	Text  string          `json:"time"`
}

// Formatter renders a value, e.g. a closure over engine.FormatTime.
type Formatter func(model.ZmanValue) string

// Present keeps the descriptors that are visible and have a computed
// entry, sorts them by time with absent values last in catalog order, and
// renders labels in lang.
func Present(values map[string]model.ZmanValue, descs []model.ZmanDescriptor, visible model.VisibilitySet,
	lang model.LabelLanguage, format Formatter) []Row {
	rows := make([]Row, 0, len(descs))
	for _, d := range descs {
		v, ok := values[d.ID]
		if !ok || !visible.Visible(d.ID) {
			continue
		}
		r := Row{ID: d.ID, Label: d.Label.Render(lang), Value: v}
		if format != nil {
			r.Text = format(v)
		}
		rows = append(rows, r)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].Value, rows[j].Value
		switch {
		case a.OK && b.OK:
			return a.At.Before(b.At)
		case a.OK:
			return true
		default:
			return false
		}
	})
	return rows
}
