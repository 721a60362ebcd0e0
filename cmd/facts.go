package main

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/sells-group/dailyform/internal/form"
	"github.com/sells-group/dailyform/internal/store"
)

var (
	factsID   string
	factsJSON bool
)

var factsCmd = &cobra.Command{
	Use:   "facts",
	Short: "List persisted facts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		recs, err := env.Store.List(ctx)
		if err != nil {
			return err
		}
		if factsID != "" {
			recs = slices.DeleteFunc(recs, func(r store.Record) bool { return r.FormID != factsID })
		}

		w := cmd.OutOrStdout()
		if factsJSON {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(recs)
		}
		for _, r := range recs {
			fmt.Fprintf(w, "%s  run=%s  updated=%s\n", r.Key, r.RunID, r.UpdatedAt.Format("2006-01-02 15:04:05"))
			keys := make([]string, 0, len(r.Facts))
			for k := range r.Facts {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			for _, k := range keys {
				fmt.Fprintf(w, "  %s: %s\n", k, form.Display(r.Facts[k]))
			}
		}
		return nil
	},
}

func init() {
	factsCmd.Flags().StringVar(&factsID, "id", "", "only this form id")
	factsCmd.Flags().BoolVar(&factsJSON, "json", false, "print JSON")
	rootCmd.AddCommand(factsCmd)
}
