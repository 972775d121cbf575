package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/groupexec/internal/engine"
)

// NewRunCmd создаёт группу команд для управления runs.
func NewRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Manage runs",
	}

	cmd.AddCommand(
		newRunListCmd(clientFn, outputFn),
		newRunStartCmd(clientFn, outputFn),
		newRunShowCmd(clientFn, outputFn),
		newRunCancelCmd(clientFn, outputFn),
	)

	return cmd
}

func newRunListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var controllerID string
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List run history",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			runs, err := client.ListRuns(ListRunsOpts{
				ControllerID: controllerID,
				Status:       status,
				Limit:        limit,
			})
			if err != nil {
				return err
			}

			headers := []string{"ID", "CONTROLLER", "STATUS", "PROGRESS", "CREATED"}
			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = []string{r.ID, r.ControllerID, out.Status(r.Status), progress(r.CurrentStep, r.TotalSteps), r.CreatedAt}
			}

			out.Print(headers, rows, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&controllerID, "controller", "", "Filter by controller ID")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (RUNNING, COMPLETED, FAILED, CANCELLED)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newRunStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var steps []string
	var file string
	var repeat int
	var groupDelay float64
	var queued bool
	var wait bool
	var pollInterval time.Duration

	cmd := &cobra.Command{
		Use:   "start CONTROLLER",
		Short: "Start a plan on a controller",
		Long: `Start a plan on a controller.

Steps use the compact form GROUP[:REPEAT[:DELAY]]; "delay:SECONDS" inserts
a pure delay. A plan file (JSON or YAML) is sent first, --step entries are
appended after it.`,
		Example: `  groupexec run start panel-1 --step render:2:1.5 --step delay:5 --step upscale
  groupexec run start panel-1 --file plan.yaml --repeat 3 --group-delay 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := StartRunRequest{
				Steps:      steps,
				Repeat:     repeat,
				GroupDelay: groupDelay,
				Queued:     queued,
			}

			if file != "" {
				plan, err := readPlanFile(file)
				if err != nil {
					return err
				}
				req.Plan = plan
			}

			// Проверяем компактную запись до отправки
			for _, s := range steps {
				if _, err := engine.ParseStepSpec(s); err != nil {
					return err
				}
			}

			resp, err := client.StartRun(args[0], req)
			if err != nil {
				return err
			}

			if resp.Queued {
				out.Success(fmt.Sprintf("Plan queued for %s (%d units)", resp.ControllerID, resp.TotalSteps))
				return nil
			}

			out.Success(fmt.Sprintf("Run started: %s (%d units)", resp.RunID, resp.TotalSteps))

			if !wait {
				out.Print(
					[]string{"RUN_ID", "CONTROLLER", "UNITS"},
					[][]string{{resp.RunID, resp.ControllerID, strconv.Itoa(resp.TotalSteps)}},
					resp,
				)
				return nil
			}

			ctrl, err := waitForRun(client, out, resp.ControllerID, resp.RunID, pollInterval)
			if err != nil {
				return err
			}
			out.Print(controllerHeaders, [][]string{controllerRow(out, *ctrl)}, ctrl)
			if ctrl.LastStatus == "FAILED" {
				return fmt.Errorf("run failed: %s", ctrl.LastError)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&steps, "step", nil, "Plan step GROUP[:REPEAT[:DELAY]] or delay:SECONDS (repeatable)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Plan file (JSON or YAML)")
	cmd.Flags().IntVar(&repeat, "repeat", 0, "Repeat the whole plan N times")
	cmd.Flags().Float64Var(&groupDelay, "group-delay", 0, "Delay in seconds between plan repetitions")
	cmd.Flags().BoolVar(&queued, "queued", false, "Publish the plan to RabbitMQ instead of starting it directly")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the run to finish, printing progress")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 500*time.Millisecond, "Progress poll interval for --wait")

	return cmd
}

func newRunShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show run details from history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.GetRun(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"ID", "CONTROLLER", "STATUS", "PROGRESS", "DURATION", "ERROR"},
				[][]string{{
					run.ID,
					run.ControllerID,
					out.Status(run.Status),
					progress(run.CurrentStep, run.TotalSteps),
					(time.Duration(run.DurationMs) * time.Millisecond).String(),
					run.Error,
				}},
				run,
			)
			return nil
		},
	}
}

func newRunCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel CONTROLLER",
		Short: "Cancel the running plan of a controller",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			ctrl, err := client.CancelRun(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Cancellation requested: %s", ctrl.ControllerID))
			return nil
		},
	}
}

// readPlanFile читает план из файла и возвращает его как JSON.
func readPlanFile(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}

	plan, err := engine.ParsePlan(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return json.Marshal(plan)
}

// waitForRun опрашивает контроллер, пока run runID не завершится.
func waitForRun(client *Client, out *Output, controllerID, runID string, interval time.Duration) (*ControllerResponse, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	var lastText string
	for {
		ctrl, err := client.GetController(controllerID)
		if err != nil {
			return nil, err
		}

		if text := ctrl.StatusText(); text != "" && text != lastText {
			out.Success(fmt.Sprintf("[%3d%%] %s", ctrl.Percent, text))
			lastText = text
		}

		if !ctrl.Executing || ctrl.RunID != runID {
			return ctrl, nil
		}

		time.Sleep(interval)
	}
}

func progress(current, total int) string {
	return strconv.Itoa(current) + "/" + strconv.Itoa(total)
}
