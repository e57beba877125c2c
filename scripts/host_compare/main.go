// Command host_compare fetches the same timetable resources from the primary
// and fallback hosts and reports where their payloads differ.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"reflect"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/schedule-sync/pkg/calendar"
	"github.com/noah-isme/schedule-sync/pkg/config"
	"github.com/noah-isme/schedule-sync/pkg/logger"
	"github.com/noah-isme/schedule-sync/pkg/upstream"
)

type target struct {
	Name     string
	Path     string
	Params   url.Values
	Critical bool
}

type comparison struct {
	Target           target
	PrimaryErr       error
	FallbackErr      error
	Match            bool
	DurationPrimary  time.Duration
	DurationFallback time.Duration
}

func main() {
	var (
		facultyID string
		groupID   string
		date      string
		timeout   time.Duration
	)

	flag.StringVar(&facultyID, "faculty", "", "Faculty id used for the groups request")
	flag.StringVar(&groupID, "group", "", "Group id used for the schedule request")
	flag.StringVar(&date, "date", "", "Schedule start date (YYYY-MM-DD), defaults to the current week")
	flag.DurationVar(&timeout, "timeout", 20*time.Second, "Per-request timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Upstream.PrimaryURL == "" || cfg.Upstream.FallbackURL == "" {
		logr.Fatal("both UPSTREAM_PRIMARY_URL and UPSTREAM_FALLBACK_URL must be set")
	}

	loc := calendar.LoadLocation(cfg.Timetable.Timezone)
	start := calendar.StartOfWeek(calendar.DateOnly(time.Now(), loc))
	if date != "" {
		parsed, err := calendar.ParseServerDate(date, loc)
		if err != nil {
			logr.Fatal("invalid -date", zap.Error(err))
		}
		start = parsed
	}

	primary := upstream.New(upstream.Config{PrimaryURL: cfg.Upstream.PrimaryURL, Timeout: timeout, Logger: logr})
	fallback := upstream.New(upstream.Config{PrimaryURL: cfg.Upstream.FallbackURL, Timeout: timeout, Logger: logr})

	targets := []target{{Name: "faculties", Path: cfg.Upstream.FacultiesPath, Critical: true}}
	if facultyID != "" {
		targets = append(targets, target{
			Name:     "groups",
			Path:     cfg.Upstream.GroupsPath,
			Params:   url.Values{"facultyId": {facultyID}},
			Critical: true,
		})
	}
	if groupID != "" {
		targets = append(targets, target{
			Name: "schedule",
			Path: cfg.Upstream.SchedulePath,
			Params: url.Values{
				"scheduleType": {"gr"},
				"parameter":    {groupID},
				"days":         {fmt.Sprint(cfg.Timetable.ScheduleDays)},
				"startDate":    {calendar.FormatServerDate(start, loc)},
			},
		})
	}

	ctx := context.Background()
	var (
		results      []comparison
		breaking     int
		optionalDiff int
	)
	for _, t := range targets {
		res := compareTarget(ctx, primary, fallback, t)
		if res.PrimaryErr != nil || res.FallbackErr != nil || !res.Match {
			if t.Critical {
				breaking++
			} else {
				optionalDiff++
			}
		}
		results = append(results, res)
	}

	printReport(results)
	fmt.Printf("Breaking diffs: %d, Optional diffs: %d\n", breaking, optionalDiff)
	if breaking > 0 {
		os.Exit(1)
	}
}

type fetcher interface {
	Fetch(ctx context.Context, path string, params url.Values) (json.RawMessage, error)
}

func compareTarget(ctx context.Context, primary, fallback fetcher, tgt target) comparison {
	res := comparison{Target: tgt}

	begin := time.Now()
	a, err := primary.Fetch(ctx, tgt.Path, tgt.Params)
	res.DurationPrimary = time.Since(begin)
	res.PrimaryErr = err

	begin = time.Now()
	b, err := fallback.Fetch(ctx, tgt.Path, tgt.Params)
	res.DurationFallback = time.Since(begin)
	res.FallbackErr = err

	if res.PrimaryErr == nil && res.FallbackErr == nil {
		res.Match = payloadsEqual(a, b)
	}
	return res
}

func payloadsEqual(a, b json.RawMessage) bool {
	var av, bv interface{}
	if err := json.Unmarshal(a, &av); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	return reflect.DeepEqual(av, bv)
}

func printReport(results []comparison) {
	fmt.Println("Host Compare Report")
	fmt.Println("===================")
	for _, res := range results {
		status := "OK"
		switch {
		case res.PrimaryErr != nil || res.FallbackErr != nil:
			status = "ERROR"
		case !res.Match:
			status = "DIFF"
		}
		fmt.Printf("[%s] %s (%s)\n", status, res.Target.Name, res.Target.Path)
		fmt.Printf("  Primary: %s", res.DurationPrimary)
		if res.PrimaryErr != nil {
			fmt.Printf(" error: %v", res.PrimaryErr)
		}
		fmt.Printf("\n  Fallback: %s", res.DurationFallback)
		if res.FallbackErr != nil {
			fmt.Printf(" error: %v", res.FallbackErr)
		}
		fmt.Printf("\n  Critical: %t\n", res.Target.Critical)
	}
}
