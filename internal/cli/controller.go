package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewControllerCmd создаёт группу команд для контроллеров (панелей).
func NewControllerCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "controller",
		Aliases: []string{"ctl"},
		Short:   "Inspect controllers",
	}

	cmd.AddCommand(
		newControllerListCmd(clientFn, outputFn),
		newControllerShowCmd(clientFn, outputFn),
	)

	return cmd
}

var controllerHeaders = []string{"ID", "STATE", "PROGRESS", "PERCENT", "STATUS", "LAST"}

func controllerRow(out *Output, c ControllerResponse) []string {
	return []string{
		c.ControllerID,
		c.State,
		strconv.Itoa(c.CurrentStep) + "/" + strconv.Itoa(c.TotalSteps),
		strconv.Itoa(c.Percent) + "%",
		c.StatusText(),
		out.Status(c.LastStatus),
	}
}

func newControllerListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List controllers",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			controllers, err := client.ListControllers()
			if err != nil {
				return err
			}

			rows := make([][]string, len(controllers))
			for i, c := range controllers {
				rows[i] = controllerRow(out, c)
			}

			out.Print(controllerHeaders, rows, controllers)
			return nil
		},
	}
}

func newControllerShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show controller state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			ctrl, err := client.GetController(args[0])
			if err != nil {
				return err
			}

			out.Print(controllerHeaders, [][]string{controllerRow(out, *ctrl)}, ctrl)
			return nil
		},
	}
}
