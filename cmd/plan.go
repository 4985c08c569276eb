package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kilianp07/salesintel/app"
	"github.com/kilianp07/salesintel/core/precall"
)

var planOut string

var planCmd = &cobra.Command{
	Use:   "plan <customer-id>",
	Short: "Generate a pre-call plan for a customer",
	Args:  cobra.ExactArgs(1),
	RunE:  plan,
}

func init() {
	planCmd.Flags().StringVarP(&planOut, "output", "o", "", "write the plan to this file instead of the plan directory")
	rootCmd.AddCommand(planCmd)
}

func plan(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return withService(cfg, func(svc *app.Service) error {
		res, err := svc.Store().LoadResult()
		if err != nil {
			return fmt.Errorf("load result (run setup first): %w", err)
		}
		id := args[0]
		c, ok := res.Customer(id)
		contrib, hasRow := res.Attributions.Row(id)
		if !ok || !hasRow {
			return fmt.Errorf("customer %s not found", id)
		}
		req := precall.Request{
			Customer:  precall.BuildContext(c, res.Attributions.FeatureNames, contrib, res.Attributions.ExpectedValue),
			Knowledge: svc.Knowledge().Entries(),
		}
		p, err := svc.Planner().Generate(ctx, req)
		if err != nil {
			return err
		}
		path := planOut
		if path == "" {
			path = filepath.Join(cfg.Server.PlanDir, p.FileName())
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(p.Markdown), 0o644); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), p.Markdown)
		fmt.Fprintf(cmd.ErrOrStderr(), "plan written to %s\n", path)
		return nil
	})
}
