package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dailyform/internal/form"
	"github.com/sells-group/dailyform/internal/recovery"
	"github.com/sells-group/dailyform/internal/source"
)

var (
	runID          string
	runDate        string
	runZip         string
	runFailWeather bool
	runFailTodo    bool
	runTemplate    string
	runHTML        bool
	runTwice       bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate the daily report for one identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		date, err := parseDate(runDate)
		if err != nil {
			return err
		}
		if runTemplate != "" {
			cfg.Form.Template = runTemplate
		}

		env, err := initEnv(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := env.runReport(ctx, reportRequest{
			formRequest: formRequest{
				ID:       runID,
				Date:     date,
				Zip:      runZip,
				Failures: failures(runFailWeather, runFailTodo),
			},
			HTML:  runHTML,
			Twice: runTwice,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

// reportRequest is a form request plus rendering options.
type reportRequest struct {
	formRequest
	HTML bool
	// Twice prepares a second time before rendering; the second pass must
	// neither refetch nor duplicate errors.
	Twice bool
}

// runReport builds, runs and renders one form. Facts are written back to the
// store on every path.
func (e *formEnv) runReport(ctx context.Context, req reportRequest) (string, error) {
	r, err := e.renderer(req.HTML)
	if err != nil {
		return "", err
	}
	f, err := e.newForm(req.formRequest)
	if err != nil {
		return "", err
	}

	scope := e.Overlay.Open(f)
	defer scope.Close(ctx) //nolint:errcheck

	if err := f.Prepare(ctx, false); err != nil {
		return "", err
	}
	if req.Twice {
		before := len(f.Errors())
		if err := f.Prepare(ctx, false); err != nil {
			return "", err
		}
		if len(f.Errors()) != before {
			return "", eris.Errorf("run: second prepare changed errors from %d to %d", before, len(f.Errors()))
		}
	}

	out, err := f.Render(ctx, r)
	if err != nil {
		return "", err
	}
	if err := scope.Close(ctx); err != nil {
		return "", err
	}

	zap.L().Info("report rendered",
		zap.Stringer("key", f.Key()),
		zap.Stringer("state", f.State()),
		zap.Int("errors", len(f.Errors())),
	)
	return out, nil
}

// renderOnce is the plain path used by serve.
func (e *formEnv) renderOnce(ctx context.Context, req reportRequest) (*form.Form, string, error) {
	r, err := e.renderer(req.HTML)
	if err != nil {
		return nil, "", err
	}
	f, err := e.newForm(req.formRequest)
	if err != nil {
		return nil, "", err
	}
	out, err := recovery.Render(ctx, e.Overlay, f, r)
	return f, out, err
}

func failures(weather, todo bool) []string {
	var out []string
	if weather {
		out = append(out, source.KeyWeather)
	}
	if todo {
		out = append(out, source.KeyTodo)
	}
	return out
}

// parseDate accepts 2006-01-02; empty means today.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := time.ParseInLocation(form.DateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "parse date %q", s)
	}
	return d, nil
}

func init() {
	runCmd.Flags().StringVar(&runID, "id", source.DefaultUser, "form id (whose report)")
	runCmd.Flags().StringVar(&runDate, "date", "", "report date as YYYY-MM-DD (default today)")
	runCmd.Flags().StringVar(&runZip, "zip", "", "postal code override")
	runCmd.Flags().BoolVar(&runFailWeather, "fail-weather", false, "simulate a weather source failure")
	runCmd.Flags().BoolVar(&runFailTodo, "fail-todo", false, "simulate a to-do source failure")
	runCmd.Flags().StringVar(&runTemplate, "template", "", "template file (text placeholders, or html/template with --html)")
	runCmd.Flags().BoolVar(&runHTML, "html", false, "render HTML")
	runCmd.Flags().BoolVar(&runTwice, "twice", false, "prepare twice before rendering (idempotence check)")
	rootCmd.AddCommand(runCmd)
}
