package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var scheduleHeaders = []string{"ID", "AGENT_ID", "NAME", "ACTION", "RECURRENCE", "ACTIVE", "NEXT_RUN", "LAST_ERROR"}

// NewScheduleCmd создаёт группу команд для управления schedules.
func NewScheduleCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage schedules",
	}

	cmd.AddCommand(
		newScheduleListCmd(clientFn, outputFn),
		newScheduleCreateCmd(clientFn, outputFn),
		newScheduleShowCmd(clientFn, outputFn),
		newScheduleUpdateCmd(clientFn, outputFn),
		newScheduleDeleteCmd(clientFn, outputFn),
		newScheduleToggleCmd(clientFn, outputFn, true),
		newScheduleToggleCmd(clientFn, outputFn, false),
		newScheduleRunCmd(clientFn, outputFn),
		newScheduleCatchUpCmd(clientFn, outputFn),
	)

	return cmd
}

func newScheduleListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListSchedulesOpts
	var active string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			if active != "" {
				b, err := strconv.ParseBool(active)
				if err != nil {
					return fmt.Errorf("invalid --active value %q", active)
				}
				opts.Active = &b
			}

			schedules, err := clientFn().ListSchedules(opts)
			if err != nil {
				return err
			}

			rows := make([][]string, len(schedules))
			for i := range schedules {
				rows[i] = scheduleRow(&schedules[i])
			}

			outputFn().Print(scheduleHeaders, rows, schedules)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.OrgID, "org-id", "", "Filter by organization ID")
	cmd.Flags().StringVar(&opts.AgentID, "agent-id", "", "Filter by agent ID")
	cmd.Flags().StringVar(&active, "active", "", "Filter by active flag (true/false)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of schedules")

	return cmd
}

func newScheduleCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var req CreateScheduleRequest
	var oneTimeAt string
	var params []string

	cmd := &cobra.Command{
		Use:   "create AGENT_ID",
		Short: "Create a schedule for an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if oneTimeAt != "" {
				at, err := time.Parse(time.RFC3339, oneTimeAt)
				if err != nil {
					return fmt.Errorf("invalid --at value %q, expected RFC3339", oneTimeAt)
				}
				req.OneTimeAt = &at
			}

			parsed, err := parseParams(params)
			if err != nil {
				return err
			}
			req.Params = parsed

			schedule, err := clientFn().CreateSchedule(args[0], req)
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Schedule created: %s", schedule.ID))
			out.Print(scheduleHeaders, [][]string{scheduleRow(schedule)}, schedule)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "Schedule name")
	cmd.Flags().StringVar(&req.Frequency, "frequency", "", "once, daily, weekly or monthly (required)")
	cmd.Flags().StringVar(&req.TimeOfDay, "time", "", "Local time of day HH:MM")
	cmd.Flags().IntVar(&req.DayOfWeek, "day-of-week", 0, "Day of week 1-7 (weekly)")
	cmd.Flags().IntVar(&req.DayOfMonth, "day-of-month", 0, "Day of month 1-31 (monthly)")
	cmd.Flags().StringVar(&oneTimeAt, "at", "", "Run instant in RFC3339 (once)")
	cmd.Flags().StringVar(&req.Action, "action", "", "digest or call (required)")
	cmd.Flags().StringSliceVar(&params, "param", nil, "Action parameter as KEY=VALUE (repeatable)")
	cmd.Flags().IntVar(&req.ThresholdDays, "threshold-days", 0, "Run only when no event for N days")
	cmd.MarkFlagRequired("frequency")
	cmd.MarkFlagRequired("action")

	return cmd
}

func newScheduleShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show schedule details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schedule, err := clientFn().GetSchedule(args[0])
			if err != nil {
				return err
			}

			outputFn().Print(
				[]string{"ID", "ORG_ID", "AGENT_ID", "ACTION", "RECURRENCE", "THRESHOLD", "ACTIVE", "LAST_RUN", "NEXT_RUN", "LAST_ERROR"},
				[][]string{{
					schedule.ID, schedule.OrgID, schedule.AgentID, schedule.Action,
					formatRecurrence(schedule), formatThreshold(schedule.ThresholdDays),
					strconv.FormatBool(schedule.IsActive), schedule.LastRunAt, schedule.NextRunAt,
					schedule.LastError,
				}},
				schedule,
			)
			return nil
		},
	}
}

func newScheduleUpdateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var name, frequency, timeOfDay, oneTimeAt string
	var dayOfWeek, dayOfMonth, thresholdDays int
	var params []string

	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Update a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := UpdateScheduleRequest{}
			flags := cmd.Flags()
			if flags.Changed("name") {
				req.Name = &name
			}
			if flags.Changed("frequency") {
				req.Frequency = &frequency
			}
			if flags.Changed("time") {
				req.TimeOfDay = &timeOfDay
			}
			if flags.Changed("day-of-week") {
				req.DayOfWeek = &dayOfWeek
			}
			if flags.Changed("day-of-month") {
				req.DayOfMonth = &dayOfMonth
			}
			if flags.Changed("threshold-days") {
				req.ThresholdDays = &thresholdDays
			}
			if flags.Changed("at") {
				at, err := time.Parse(time.RFC3339, oneTimeAt)
				if err != nil {
					return fmt.Errorf("invalid --at value %q, expected RFC3339", oneTimeAt)
				}
				req.OneTimeAt = &at
			}
			if flags.Changed("param") {
				parsed, err := parseParams(params)
				if err != nil {
					return err
				}
				req.Params = &parsed
			}

			schedule, err := clientFn().UpdateSchedule(args[0], req)
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success("Schedule updated")
			out.Print(scheduleHeaders, [][]string{scheduleRow(schedule)}, schedule)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "New schedule name")
	cmd.Flags().StringVar(&frequency, "frequency", "", "New frequency")
	cmd.Flags().StringVar(&timeOfDay, "time", "", "New local time of day HH:MM")
	cmd.Flags().IntVar(&dayOfWeek, "day-of-week", 0, "New day of week 1-7")
	cmd.Flags().IntVar(&dayOfMonth, "day-of-month", 0, "New day of month 1-31")
	cmd.Flags().StringVar(&oneTimeAt, "at", "", "New run instant in RFC3339")
	cmd.Flags().StringSliceVar(&params, "param", nil, "Replace action parameters, KEY=VALUE (repeatable)")
	cmd.Flags().IntVar(&thresholdDays, "threshold-days", 0, "New threshold in days (0 disables)")

	return cmd
}

func newScheduleDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().DeleteSchedule(args[0]); err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Schedule deleted: %s", args[0]))
			return nil
		},
	}
}

func newScheduleToggleCmd(clientFn func() *Client, outputFn func() *Output, active bool) *cobra.Command {
	use, short, verb := "disable ID", "Disable a schedule", "disabled"
	if active {
		use, short, verb = "enable ID", "Enable a schedule (next run is recomputed from now)", "enabled"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schedule, err := clientFn().SetScheduleActive(args[0], active)
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Schedule %s: %s", verb, args[0]))
			out.Print(scheduleHeaders, [][]string{scheduleRow(schedule)}, schedule)
			return nil
		},
	}
}

func newScheduleRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "run ID",
		Short: "Execute a schedule now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := clientFn().RunSchedule(args[0])
			if err != nil {
				return err
			}

			nextRun := ""
			if run.Schedule != nil {
				nextRun = run.Schedule.NextRunAt
			}

			outputFn().Print(
				[]string{"SCHEDULE_ID", "OUTCOME", "DID_WORK", "NEXT_RUN", "ERROR"},
				[][]string{{run.ScheduleID, run.Outcome, strconv.FormatBool(run.DidWork), nextRun, run.Error}},
				run,
			)
			return nil
		},
	}
}

func newScheduleCatchUpCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "catch-up",
		Short: "Execute every schedule whose run window was missed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pass, err := clientFn().CatchUp()
			if err != nil {
				return err
			}

			outputFn().Print(
				[]string{"OVERDUE", "EXECUTED", "SKIPPED", "FAILED", "ABANDONED", "DEFERRED"},
				[][]string{{
					strconv.Itoa(pass.Due), strconv.Itoa(pass.Executed), strconv.Itoa(pass.Skipped),
					strconv.Itoa(pass.Failed), strconv.Itoa(pass.Abandoned), strconv.Itoa(pass.Deferred),
				}},
				pass,
			)
			return nil
		},
	}
}

func scheduleRow(s *ScheduleResponse) []string {
	return []string{
		s.ID, s.AgentID, s.Name, s.Action, formatRecurrence(s),
		strconv.FormatBool(s.IsActive), s.NextRunAt, s.LastError,
	}
}

// formatRecurrence: "daily 09:00", "weekly 3 09:00", "monthly 31 09:00", "once <at>".
func formatRecurrence(s *ScheduleResponse) string {
	switch s.Frequency {
	case "once":
		return "once " + s.OneTimeAt
	case "weekly":
		return fmt.Sprintf("weekly %d %s", s.DayOfWeek, s.TimeOfDay)
	case "monthly":
		return fmt.Sprintf("monthly %d %s", s.DayOfMonth, s.TimeOfDay)
	default:
		return strings.TrimSpace(s.Frequency + " " + s.TimeOfDay)
	}
}

func formatThreshold(days int) string {
	if days <= 0 {
		return ""
	}
	return strconv.Itoa(days) + "d"
}

func parseParams(kvs []string) (map[string]any, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid param format %q, expected KEY=VALUE", kv)
		}
		params[key] = value
	}
	return params, nil
}
