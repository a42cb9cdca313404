// Command finscope-cli renders one timeline state as JSON, or announces a
// dataset change to running servers.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"finscope/internal/amqp"
	"finscope/internal/cli"
	"finscope/internal/config"
	"finscope/internal/dataset"
	"finscope/internal/log"
	"finscope/internal/source"
	"finscope/internal/timeline"
	"finscope/internal/timeline/breakdown"
	"finscope/internal/timeline/chart"
	"finscope/internal/timeline/period"
	"finscope/internal/timeline/zoom"
)

type options struct {
	zoom        int
	granularity string
	mode     string
	owners   string
	accounts string
	hide     string
	expand   string
	start    string
	end      string
	hover    int
	notify   string
}

type output struct {
	Version     uint64         `json:"version"`
	Granularity string         `json:"granularity"`
	ZoomLevel   int            `json:"zoom_level"`
	Window      zoom.Window    `json:"window"`
	Series      []chart.Series `json:"series"`
	Options     chart.Options  `json:"options"`
	Hover       any            `json:"hover,omitempty"`
}

func main() {
	var opts options
	flag.IntVar(&opts.zoom, "zoom", 0, "zoom steps from the default level; negative zooms out")
	flag.StringVar(&opts.granularity, "granularity", "", "month, quarter or year; overrides -zoom")
	flag.StringVar(&opts.mode, "mode", "ALL", "breakdown mode: ALL, BY_OWNER or BY_ACCOUNT")
	flag.StringVar(&opts.owners, "owners", "", "comma separated owners for BY_OWNER (empty: all)")
	flag.StringVar(&opts.accounts, "accounts", "", "comma separated owner_account keys for BY_ACCOUNT (empty: all)")
	flag.StringVar(&opts.hide, "hide", "", "comma separated category ids to hide")
	flag.StringVar(&opts.expand, "expand", "", "comma separated category ids to split into subcategories")
	flag.StringVar(&opts.start, "start", "", "custom window start date")
	flag.StringVar(&opts.end, "end", "", "custom window end date")
	flag.IntVar(&opts.hover, "hover", -1, "also print the detail of this period index")
	flag.StringVar(&opts.notify, "notify", "", "publish a dataset changed message with this reason and exit")
	flag.Parse()

	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	level, _ := log.ParseLevel(cfg.LogLevel)
	// stdout carries the JSON document
	logger := log.New(log.Config{Level: level, Format: cfg.LogFormat, Component: log.ComponentCLI, Output: os.Stderr})

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var err error
	if opts.notify != "" {
		err = notify(ctx, cfg, opts.notify, logger)
	} else {
		err = render(ctx, cfg, opts, os.Stdout, logger)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "finscope-cli:", err)
		os.Exit(1)
	}
}

func notify(ctx context.Context, cfg *config.Config, reason string, logger *log.Logger) error {
	if cfg.AMQPURL == "" {
		return fmt.Errorf("AMQP_URL is not set")
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, "", logger)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.PublishDatasetChanged(ctx, cfg.DataBackend, reason)
}

func render(ctx context.Context, cfg *config.Config, opts options, w io.Writer, logger *log.Logger) error {
	res, err := cli.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if res.Cleanup != nil {
		defer res.Cleanup()
	}

	store := dataset.NewStore(res.Source, cfg.DataBackend, logger)
	ds, err := store.Reload(ctx)
	if err != nil {
		return err
	}

	loc, _ := cfg.Location()
	v := timeline.New(timeline.WithLogger(logger), timeline.WithClock(func() time.Time { return time.Now().In(loc) }))
	v.Load(ds)
	if err := apply(v, opts, loc); err != nil {
		return err
	}

	snap := v.Snapshot()
	out := output{
		Version:     snap.Version,
		Granularity: snap.Granularity.String(),
		ZoomLevel:   snap.ZoomLevel,
		Window:      snap.Window,
		Series:      chart.Bars(snap.Series),
		Options:     chart.OptionsFor(snap.Window, snap.Range),
	}
	if opts.hover >= 0 {
		detail, err := v.Hover(opts.hover)
		if err != nil {
			return err
		}
		out.Hover = detail
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// apply replays the flags onto v as the equivalent user actions.
func apply(v *timeline.View, opts options, loc *time.Location) error {
	mode, err := breakdown.ParseMode(opts.mode)
	if err != nil {
		return err
	}
	v.SetBreakdownMode(mode)
	if opts.owners != "" {
		v.SetSelectedOwners(splitList(opts.owners))
	}
	if opts.accounts != "" {
		v.SetSelectedAccounts(splitList(opts.accounts))
	}
	for _, id := range splitList(opts.hide) {
		v.ToggleCategory(id)
	}
	for _, id := range splitList(opts.expand) {
		v.ToggleExpanded(id)
	}

	if opts.granularity != "" {
		g, err := period.ParseGranularity(opts.granularity)
		if err != nil {
			return err
		}
		v.SetGranularity(g)
	} else {
		for i := 0; i < opts.zoom; i++ {
			v.ZoomIn()
		}
		for i := 0; i > opts.zoom; i-- {
			v.ZoomOut()
		}
	}

	if opts.start != "" || opts.end != "" {
		start, err := source.ParseDate(opts.start, loc)
		if err != nil {
			return fmt.Errorf("start: %w", err)
		}
		end, err := source.ParseDate(opts.end, loc)
		if err != nil {
			return fmt.Errorf("end: %w", err)
		}
		if !end.After(start) {
			return fmt.Errorf("window end must be after start")
		}
		v.SetWindow(zoom.Window{Start: start, End: end})
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
