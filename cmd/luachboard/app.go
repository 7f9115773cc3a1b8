package main

import (
	"context"
	"time"

	"luachboard/internal/board"
	"luachboard/internal/calc"
	"luachboard/internal/catalog"
	"luachboard/internal/config"
	"luachboard/internal/geocode"
	appLog "luachboard/internal/log"
	"luachboard/internal/store"
)

// app is everything a command needs, wired from the config.
type app struct {
	cfg      *config.Config
	kv       store.Store
	geocoder *geocode.Service
	board    *board.Board
}

func newApp(cfg *config.Config, level appLog.Level) (*app, error) {
	kv, err := store.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	client := geocode.NewHTTPClient(time.Duration(cfg.Geocode.TimeoutSeconds) * time.Second)
	nominatim := geocode.NewNominatim(client, cfg.Geocode.NominatimURL)

	var reporter *geocode.ReportedPositioner
	var positioner geocode.Positioner
	switch cfg.Device.Mode {
	case config.DeviceStatic:
		positioner = geocode.StaticPositioner{Latitude: cfg.Device.Latitude, Longitude: cfg.Device.Longitude}
	case config.DeviceDisabled:
		positioner = geocode.DisabledPositioner{}
	default:
		reporter = geocode.NewReportedPositioner()
		positioner = reporter
	}

	geo := geocode.NewService(geocode.Options{
		Table: geocode.NewTable(cfg.Geocode.ZipTable),
		Providers: []geocode.Provider{
			nominatim,
			geocode.NewZipCodes(client, "", cfg.Geocode.ZipCodesAPIKey),
			geocode.NewGeoNames(client, "", cfg.Geocode.GeoNamesUsername),
		},
		Reverse:    nominatim,
		Positioner: positioner,
	})

	candles := time.Duration(cfg.Calculator.CandleLightingMinutes) * time.Minute
	gate := calc.NewGate(func(context.Context) (calc.Calculator, error) {
		return calc.NewSunCalculator(calc.SunOptions{CandleLightingOffset: candles}), nil
	})

	b, err := board.New(board.Options{
		Store:      kv,
		Gate:       gate,
		Geocoder:   geo,
		Reporter:   reporter,
		Fetcher:    catalog.NewFetcher(client, cfg.Catalog.CacheDir),
		CatalogURL: cfg.Catalog.URL,
		FeedDays:   cfg.Feed.Days,
		FeedRule:   cfg.Feed.Rule,
		LogLevel:   level,
	})
	if err != nil {
		kv.Close()
		return nil, err
	}

	return &app{cfg: cfg, kv: kv, geocoder: geo, board: b}, nil
}

// loadCatalog replaces the seed list when a catalog URL is configured.
// Failure keeps the seed list.
func (a *app) loadCatalog(ctx context.Context) {
	if a.cfg.Catalog.URL == "" {
		return
	}
	if err := a.board.LoadCatalog(ctx, ""); err != nil {
		appLog.Error("catalog load failed, keeping built-in list", err)
	}
}

func (a *app) Close() error {
	return a.kv.Close()
}
