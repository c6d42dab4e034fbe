package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewApplicationCmd создаёт группу команд для управления заявками.
func NewApplicationCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "application",
		Aliases: []string{"app"},
		Short:   "Manage loan applications",
	}

	cmd.AddCommand(
		newApplicationSubmitCmd(clientFn, outputFn),
		newApplicationListCmd(clientFn, outputFn),
		newApplicationShowCmd(clientFn, outputFn),
		newApplicationRetryCmd(clientFn, outputFn),
		newApplicationAbandonCmd(clientFn, outputFn),
	)

	return cmd
}

func applicationRow(a ApplicationResponse) []string {
	return []string{
		a.ID, a.CustomerID, a.State, a.FailedFrom,
		strconv.Itoa(a.RetryCount), strconv.FormatInt(a.Version, 10), a.CreatedAt,
	}
}

var applicationHeaders = []string{"ID", "CUSTOMER", "STATE", "FAILED_FROM", "RETRIES", "VERSION", "CREATED"}

func newApplicationSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var amount float64
	var tenure int

	cmd := &cobra.Command{
		Use:   "submit CUSTOMER_ID",
		Short: "Submit a new loan application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			app, err := client.SubmitApplication(SubmitApplicationRequest{
				CustomerID:      args[0],
				RequestedAmount: amount,
				TenureMonths:    tenure,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Application submitted: %s", app.ID))
			out.Print(applicationHeaders, [][]string{applicationRow(*app)}, app)
			return nil
		},
	}

	cmd.Flags().Float64Var(&amount, "amount", 0, "Requested loan amount")
	cmd.Flags().IntVar(&tenure, "tenure", 0, "Loan tenure in months (default 36)")
	cmd.MarkFlagRequired("amount")

	return cmd
}

func newApplicationListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var state string
	var limit int
	var offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List applications",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			apps, err := client.ListApplications(ListApplicationsOpts{
				State:  state,
				Limit:  limit,
				Offset: offset,
			})
			if err != nil {
				return err
			}

			rows := make([][]string, len(apps))
			for i, a := range apps {
				rows[i] = applicationRow(a)
			}

			out.Print(applicationHeaders, rows, apps)
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Filter by state (PENDING_SALES, FAILED, SANCTIONED, ...)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of results to skip")

	return cmd
}

func newApplicationShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show application details with transition history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			detail, err := client.GetApplication(args[0])
			if err != nil {
				return err
			}

			out.Print(applicationHeaders, [][]string{applicationRow(detail.ApplicationResponse)}, detail)
			if detail.LastError != "" {
				out.Success("Last error: " + detail.LastError)
			}

			if len(detail.History) == 0 {
				return nil
			}

			historyHeaders := []string{"SEQ", "STATE", "OUTCOME", "ATTEMPTS", "DETAIL", "AT"}
			rows := make([][]string, len(detail.History))
			for i, h := range detail.History {
				rows[i] = []string{
					strconv.FormatInt(h.Seq, 10), h.StateEntered, h.Outcome,
					strconv.Itoa(h.Attempts), h.Detail, h.CreatedAt,
				}
			}
			out.Table(historyHeaders, rows)
			return nil
		},
	}
}

func newApplicationRetryCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "retry ID",
		Short: "Re-queue a failed application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			app, err := client.RetryApplication(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Application re-queued: %s (state %s)", app.ID, app.State))
			return nil
		},
	}
}

func newApplicationAbandonCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "abandon ID",
		Short: "Close an application by operator decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			app, err := client.AbandonApplication(args[0], reason)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Application abandoned: %s", app.ID))
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Reason for abandoning")

	return cmd
}
