package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"caiyun/internal/bindings"
	"caiyun/internal/capability"
	logx "caiyun/pkg/logx"
)

func newDetectCmd(gf *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Show which host family the configured bindings are detected as",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(gf)
			if err != nil {
				return err
			}
			h, err := bindings.Assemble(cfg, bindings.Options{Log: logx.Nop()})
			if err != nil {
				return err
			}
			defer h.Close()

			d := capability.Detect(h.Globals)
			out := cmd.OutOrStdout()
			if !asJSON {
				_, err = fmt.Fprintln(out, d.String())
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"family":    d.Family().String(),
				"push":      d.HasPush(),
				"intercept": d.IsIntercept(),
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
