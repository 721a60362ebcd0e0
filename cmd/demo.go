package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/dailyform/internal/source"
)

// demoScenarios replays the four stock runs: a weather failure with no
// history, an explicit zip, a clean run, then the weather failure again,
// which now recovers the value persisted by the earlier runs.
var demoScenarios = []struct {
	name string
	req  formRequest
}{
	{"weather fails, nothing persisted", formRequest{Failures: []string{source.KeyWeather}}},
	{"explicit zip 10001", formRequest{Zip: "10001"}},
	{"clean run", formRequest{}},
	{"weather fails, recovered", formRequest{Failures: []string{source.KeyWeather}}},
}

var demoID string

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the four stock scenarios against the configured store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		return env.runDemo(ctx, cmd.OutOrStdout(), demoID)
	},
}

// runDemo renders every stock scenario for one form id, in order.
func (e *formEnv) runDemo(ctx context.Context, w io.Writer, id string) error {
	for i, sc := range demoScenarios {
		req := sc.req
		req.ID = id
		out, err := e.runReport(ctx, reportRequest{formRequest: req, Twice: true})
		if err != nil {
			return eris.Wrapf(err, "scenario %d (%s)", i+1, sc.name)
		}
		fmt.Fprintf(w, "# %d. %s\n%s\n\n", i+1, sc.name, out)
	}
	return nil
}

func init() {
	demoCmd.Flags().StringVar(&demoID, "id", source.DefaultUser, "form id")
	rootCmd.AddCommand(demoCmd)
}
