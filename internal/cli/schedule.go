package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewScheduleCmd создаёт группу команд для расписаний.
// Расписания объявляются в конфигурации сервера, CLI их только показывает.
func NewScheduleCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Inspect schedules",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			schedules, err := client.ListSchedules()
			if err != nil {
				return err
			}

			headers := []string{"NAME", "CONTROLLER", "TRIGGER", "ENABLED", "NEXT_DUE", "LAST_ERROR"}
			rows := make([][]string, len(schedules))
			for i, s := range schedules {
				trigger := s.Cron
				if trigger == "" {
					trigger = "every " + strconv.Itoa(s.IntervalSec) + "s"
				}
				rows[i] = []string{s.Name, s.Controller, trigger, strconv.FormatBool(!s.Disabled), s.NextDueAt, s.LastError}
			}

			out.Print(headers, rows, schedules)
			return nil
		},
	})

	return cmd
}

// NewGroupCmd создаёт группу команд для групп заданий.
func NewGroupCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Inspect job groups",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List known groups",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			groups, err := client.ListGroups()
			if err != nil {
				return err
			}

			rows := make([][]string, len(groups))
			for i, g := range groups {
				rows[i] = []string{g}
			}

			out.Print([]string{"GROUP"}, rows, groups)
			return nil
		},
	})

	return cmd
}
