package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"luachboard/internal/board"
	"luachboard/internal/geocode"
	"luachboard/internal/ics"
	appLog "luachboard/internal/log"
	"luachboard/internal/web"
	"luachboard/internal/zone"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230"))

	subtleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	timeStyle = cellStyle.
			Foreground(lipgloss.Color("229")).
			Align(lipgloss.Right)
)

type ServeCmd struct {
	Listen string `help:"HTTP listen address (overrides config if set)."`
}

func (c *ServeCmd) Run(rc *runContext) error {
	appLog.Info("luachboard starting", "version", version)

	cfg, err := rc.loadConfig()
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", rc.globals.Config)
		return err
	}
	// CLI --listen overrides config file listen if provided.
	if c.Listen != "" {
		cfg.Listen = c.Listen
	}

	appLog.Info("effective config",
		"listen", cfg.Listen,
		"store", cfg.Store.Driver,
		"device_mode", cfg.Device.Mode,
		"catalog_url", cfg.Catalog.URL != "",
		"feed_days", cfg.Feed.Days,
		"basic_auth", cfg.BasicAuth != nil,
	)

	a, err := newApp(cfg, rc.logLevel(cfg))
	if err != nil {
		return err
	}
	defer a.Close()

	a.loadCatalog(rc.ctx)
	if err := a.board.Start(rc.ctx); err != nil {
		return err
	}
	defer a.board.Stop()

	err = web.StartServer(rc.ctx, cfg, a.board)
	appLog.Info("luachboard exiting")
	return err
}

type TodayCmd struct {
	Date string `help:"Civil date as YYYY-MM-DD (default today)."`
}

func (c *TodayCmd) Run(rc *runContext) error {
	cfg, err := rc.loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, rc.logLevel(cfg))
	if err != nil {
		return err
	}
	defer a.Close()
	a.loadCatalog(rc.ctx)

	day := a.board.Today()
	if c.Date != "" {
		day, err = time.ParseInLocation(board.DateLayout, c.Date, day.Location())
		if err != nil {
			return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
		}
	}
	snap, err := a.board.Compute(rc.ctx, day)
	if err != nil {
		return err
	}
	fmt.Println(renderSnapshot(snap))
	return nil
}

// renderSnapshot draws the board as a terminal table.
func renderSnapshot(s board.Snapshot) string {
	rows := make([][]string, 0, len(s.Rows))
	for _, r := range s.Rows {
		rows = append(rows, []string{r.Label, r.Text})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(subtleStyle).
		Headers("Zman", "Time").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 1:
				return timeStyle
			default:
				return cellStyle
			}
		})

	var b strings.Builder
	b.WriteString(titleStyle.Render(s.Title))
	b.WriteString("\n")
	sub := s.Date + "  " + s.Location.DisplayString()
	if s.HebrewDate != "" {
		sub += "  " + s.HebrewDate
	}
	b.WriteString(subtleStyle.Render(sub))
	b.WriteString("\n")
	b.WriteString(t.String())
	return b.String()
}

type FeedCmd struct {
	Days  int    `help:"Number of days (default from config)."`
	Out   string `help:"Write to this file instead of stdout." type:"path"`
	Check bool   `help:"Read the feed back and list its events instead of writing it."`
}

func (c *FeedCmd) Run(rc *runContext) error {
	cfg, err := rc.loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, rc.logLevel(cfg))
	if err != nil {
		return err
	}
	defer a.Close()
	a.loadCatalog(rc.ctx)

	body, err := a.board.Feed(rc.ctx, c.Days)
	if err != nil {
		return err
	}
	if c.Check {
		out, err := checkFeed(body)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	}
	if c.Out == "" {
		_, err = os.Stdout.WriteString(body)
		return err
	}
	return os.WriteFile(c.Out, []byte(body), 0o644)
}

// checkFeed parses body back and lists its events. Duplicate UIDs fail.
func checkFeed(body string) (string, error) {
	entries, err := ics.ParseFeed([]byte(body))
	if err != nil {
		return "", fmt.Errorf("feed does not parse: %w", err)
	}
	seen := make(map[string]bool, len(entries))
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		if seen[e.UID] {
			return "", fmt.Errorf("feed repeats event %s", e.UID)
		}
		seen[e.UID] = true
		rows = append(rows, []string{e.At.Format("2006-01-02 15:04"), e.Summary})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(subtleStyle).
		Headers("Start", "Event").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return titleStyle.Render(fmt.Sprintf("%d events", len(entries))) + "\n" + t.String(), nil
}

type GeocodeCmd struct {
	Zip string `arg:"" help:"Zip code, 12345 or 12345-6789."`
	Set bool   `help:"Also make the result the board location."`
}

func (c *GeocodeCmd) Run(rc *runContext) error {
	cfg, err := rc.loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, rc.logLevel(cfg))
	if err != nil {
		return err
	}
	defer a.Close()

	if c.Set {
		p, err := a.board.SetLocationFromZip(rc.ctx, c.Zip)
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s  %s\n", titleStyle.Render(p.DisplayString()), p.Timezone, subtleStyle.Render(string(p.Source)))
		return nil
	}

	place, err := a.geocoder.GeocodeZip(rc.ctx, c.Zip)
	if err != nil {
		return err
	}
	fmt.Printf("%s  %.4f, %.4f  %s  %s\n", titleStyle.Render(place.Name), place.Latitude, place.Longitude,
		zone.Resolve(place.Latitude, place.Longitude), subtleStyle.Render(place.Provider))
	return nil
}

type ZoneCmd struct {
	Lat   string `help:"Latitude, e.g. --lat=40.7128."`
	Lon   string `help:"Longitude, e.g. --lon=-74.0060."`
	Rules bool   `help:"List the rules in evaluation order."`
}

func (c *ZoneCmd) Run(_ *runContext) error {
	if c.Rules {
		for i, name := range zone.Rules() {
			fmt.Printf("%2d  %s\n", i+1, name)
		}
		fmt.Printf("    %s\n", subtleStyle.Render("fallback "+zone.DefaultZone))
		return nil
	}
	lat, lon, err := geocode.ValidateCoordinates(c.Lat, c.Lon)
	if err != nil {
		return err
	}
	tz, rule := zone.ResolveRule(lat, lon)
	if rule == "" {
		rule = "fallback"
	}
	fmt.Printf("%s  %s\n", titleStyle.Render(tz), subtleStyle.Render(rule))
	return nil
}
