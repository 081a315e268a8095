package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/screentime/internal/config"
	"github.com/goodtune/screentime/internal/routine"
	"github.com/goodtune/screentime/internal/schedule"
	"github.com/goodtune/screentime/internal/storage"
	"github.com/goodtune/screentime/internal/usage"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	checkDay  string
	checkTime string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check schedules and limits interactively",
	Long:  `Check what Screentime would decide for a routine schedule or an app's usage against its limit.`,
}

var checkScheduleCmd = &cobra.Command{
	Use:   "schedule [flags] ROUTINE_ID",
	Short: "Check a routine's schedule evaluation",
	Long:  `Check whether a routine would be active at a given day and time, and when it triggers next.`,
	Example: `  screentime -c config.yaml check schedule bedtime
  screentime check schedule -day monday -time 21:30 bedtime`,
	Args: cobra.ExactArgs(1),
	RunE: runCheckSchedule,
}

var checkUsageCmd = &cobra.Command{
	Use:     "usage [flags] PACKAGE",
	Short:   "Check an app's usage against its effective limit",
	Example: `  screentime -c config.yaml check usage com.example.game`,
	Args:    cobra.ExactArgs(1),
	RunE:    runCheckUsage,
}

func init() {
	checkScheduleCmd.Flags().StringVar(&checkDay, "day", "", "Day of week (monday, tuesday, etc.) - defaults to current day")
	checkScheduleCmd.Flags().StringVar(&checkTime, "time", "", "Time of day (HH:MM) - defaults to current time")

	checkCmd.AddCommand(checkScheduleCmd)
	checkCmd.AddCommand(checkUsageCmd)
	rootCmd.AddCommand(checkCmd)
}

func runCheckSchedule(cmd *cobra.Command, args []string) error {
	routineID := args[0]

	checkDateTime := time.Now()
	if checkDay != "" || checkTime != "" {
		parsed, err := parseCheckTime(checkDay, checkTime)
		if err != nil {
			return fmt.Errorf("invalid time specification: %w", err)
		}
		checkDateTime = parsed
	}

	store, err := openCheckStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	found, err := store.Routines().Get(context.Background(), routineID)
	if err != nil {
		return fmt.Errorf("routine %q: %w", routineID, err)
	}

	printScheduleResult(found, checkDateTime)
	return nil
}

func runCheckUsage(cmd *cobra.Command, args []string) error {
	pkg := args[0]
	ctx := context.Background()

	store, err := openCheckStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()

	aggregator := usage.NewAggregator(storage.NewEventSource(store.Usage()), usage.Config{}, logger)
	usedMs := aggregator.PackageUsageToday(ctx, pkg)

	manager := routine.NewManager(store, logger)
	if err := manager.Restore(ctx); err != nil {
		return fmt.Errorf("failed to load limit state: %w", err)
	}

	printUsageResult(pkg, usedMs, manager)
	return nil
}

// openCheckStorage opens storage with a quiet logger for check mode.
func openCheckStorage() (storage.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}

// parseCheckTime builds a timestamp from day-of-week and HH:MM overrides,
// relative to the current week.
func parseCheckTime(day, clock string) (time.Time, error) {
	now := time.Now()

	result := now
	if clock != "" {
		tod, err := schedule.ParseTimeOfDay(clock)
		if err != nil {
			return time.Time{}, err
		}
		result = tod.On(now)
	}

	if day != "" {
		weekdays := map[string]time.Weekday{
			"sunday":    time.Sunday,
			"monday":    time.Monday,
			"tuesday":   time.Tuesday,
			"wednesday": time.Wednesday,
			"thursday":  time.Thursday,
			"friday":    time.Friday,
			"saturday":  time.Saturday,
		}
		target, ok := weekdays[strings.ToLower(day)]
		if !ok {
			return time.Time{}, fmt.Errorf("unknown day: %s", day)
		}
		offset := int(target - result.Weekday())
		result = result.AddDate(0, 0, offset)
	}

	return result, nil
}

// printScheduleResult prints the schedule check result with colors
func printScheduleResult(r *storage.Routine, at time.Time) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Println("SCHEDULE CHECK")
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Printf("Routine:    %s (%s)\n", r.Name, r.ID)
	fmt.Printf("Type:       %s\n", r.Schedule.Type)
	if r.Schedule.Start != nil && r.Schedule.End != nil {
		fmt.Printf("Window:     %s - %s\n", r.Schedule.Start, r.Schedule.End)
	}
	if r.Schedule.Type == schedule.TypeWeekly {
		fmt.Printf("Days:       %v\n", r.Schedule.Days.Weekdays())
	}
	fmt.Printf("Check Time: %s (%s)\n", at.Format("2006-01-02 15:04"), at.Weekday())
	fmt.Println()

	cyan.Print("Status:     ")
	if start, ok := schedule.ActiveStart(r.Schedule, at); ok {
		green.Println("ACTIVE")
		fmt.Printf("            → Window started at %s\n", start.Format("2006-01-02 15:04"))
		if end, ok := schedule.NextTrigger(r.Schedule, at, schedule.EdgeEnd); ok {
			fmt.Printf("            → Window ends at %s\n", end.Format("2006-01-02 15:04"))
		}
	} else {
		yellow.Println("INACTIVE")
		if next, ok := schedule.NextTrigger(r.Schedule, at, schedule.EdgeStart); ok {
			fmt.Printf("            → Next activation at %s\n", next.Format("2006-01-02 15:04"))
		} else {
			fmt.Println("            → No scheduled activation (manual or empty schedule)")
		}
	}

	fmt.Printf("\nMax window duration: %s\n", schedule.MaxDuration(r.Schedule))

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
}

// printUsageResult prints the usage check result with colors
func printUsageResult(pkg string, usedMs int64, manager *routine.Manager) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Println("USAGE CHECK")
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Printf("Package:    %s\n", pkg)
	fmt.Printf("Used today: %s\n", (time.Duration(usedMs) * time.Millisecond).Round(time.Second))
	if active := manager.Active(); active != nil {
		fmt.Printf("Routine:    %s (active)\n", active.Name)
	}
	fmt.Println()

	cyan.Print("Decision:   ")
	minutes, limited := manager.LimitFor(pkg)
	switch {
	case !limited:
		green.Println("UNRESTRICTED")
		fmt.Println("            → No limit applies to this package")
	case usedMs >= int64(minutes)*60*1000:
		red.Println("LIMIT REACHED")
		fmt.Printf("            → Limit of %d minutes is exhausted\n", minutes)
	default:
		remaining := time.Duration(int64(minutes)*60*1000-usedMs) * time.Millisecond
		green.Println("WITHIN LIMIT")
		fmt.Printf("            → Limit: %d minutes\n", minutes)
		fmt.Printf("            → Remaining: %s\n", remaining.Round(time.Second))
	}

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
}
