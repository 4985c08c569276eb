package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kilianp07/salesintel/app"
	"github.com/kilianp07/salesintel/core/knowledge"
	"github.com/kilianp07/salesintel/core/pipeline"
	"github.com/kilianp07/salesintel/core/synth"
	"github.com/kilianp07/salesintel/infra/dataset"
)

var (
	genCustomers int
	genSeed      uint64
	allocBudget  int
	allocCap     int
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Render the knowledge base and run the full pipeline",
	RunE:  setup,
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate the synthetic customer table",
	RunE:  generate,
}

var allocateCmd = &cobra.Command{
	Use:   "allocate",
	Short: "Train, score and allocate actions over the saved customer table",
	RunE:  allocate,
}

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Render the knowledge base documents",
	RunE:  renderKnowledge,
}

func init() {
	generateCmd.Flags().IntVar(&genCustomers, "customers", 0, "number of customers (default from config)")
	generateCmd.Flags().Uint64Var(&genSeed, "seed", 0, "random seed (default from config)")
	allocateCmd.Flags().IntVar(&allocBudget, "budget", 0, "total action budget (default from config)")
	allocateCmd.Flags().IntVar(&allocCap, "cap", 0, "maximum actions per customer (default from config)")
	rootCmd.AddCommand(setupCmd, generateCmd, allocateCmd, kbCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	paths, err := renderDocuments(cfg.Knowledge.Dir)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "rendered %d knowledge documents into %s\n", len(paths), cfg.Knowledge.Dir)
	return withService(cfg, func(svc *app.Service) error {
		res, err := svc.Refresh(ctx)
		if err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), res)
		return nil
	})
}

func generate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	gc := cfg.Generator
	if genCustomers > 0 {
		gc.Customers = genCustomers
	}
	if genSeed > 0 {
		gc.Seed = genSeed
	}
	g, err := synth.New(gc)
	if err != nil {
		return err
	}
	customers, err := g.Generate()
	if err != nil {
		return err
	}
	store := dataset.New(cfg.Data.Dir)
	if err := store.SaveGenerated(customers); err != nil {
		return err
	}
	var mean float64
	for _, c := range customers {
		mean += c.ExpansionRevenuePotential
	}
	mean /= float64(len(customers))
	fmt.Fprintf(cmd.OutOrStdout(), "generated %d customers (mean expansion potential $%.1fK) into %s\n",
		len(customers), mean, store.Path(dataset.CustomersFile))
	return nil
}

func allocate(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("budget") {
		cfg.Allocation.TotalBudget = allocBudget
	}
	if cmd.Flags().Changed("cap") {
		cfg.Allocation.PerEntityCap = allocCap
	}
	if err := cfg.Allocation.Validate(); err != nil {
		return err
	}
	store := dataset.New(cfg.Data.Dir)
	// Without a saved table the pipeline generates one.
	customers, err := store.LoadCustomers()
	if err != nil && !errors.Is(err, dataset.ErrNotFound) {
		return err
	}
	return withService(cfg, func(svc *app.Service) error {
		opts := cfg.Pipeline()
		opts.Customers = customers
		res, err := svc.Runner().Run(ctx, opts)
		if err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), res)
		return nil
	})
}

func renderKnowledge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	paths, err := renderDocuments(cfg.Knowledge.Dir)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return nil
}

func renderDocuments(dir string) ([]string, error) {
	lib, err := knowledge.DefaultLibrary()
	if err != nil {
		return nil, err
	}
	return knowledge.Render(dir, lib)
}

func printSummary(w io.Writer, res *pipeline.Result) {
	s := res.Summary
	fmt.Fprintf(w, "run %s\n", res.RunID)
	fmt.Fprintf(w, "model R2: train %.3f, test %.3f\n", res.Model.TrainR2, res.Model.TestR2)
	fmt.Fprintf(w, "customers: %d, with actions: %d\n", s.TotalCustomers, s.CustomersWithActions)
	fmt.Fprintf(w, "actions allocated: %d (min %d, max %d, mean %.2f)\n", s.TotalActionsAllocated, s.MinActions, s.MaxActions, s.MeanActions)
	fmt.Fprintf(w, "pipeline value: $%.1fM (avg predicted $%.1fK)\n", s.PipelineValueMillions(), s.AvgPredictedRevenue)
	for _, as := range topAssignments(res, 5) {
		c, _ := res.Customer(as)
		fmt.Fprintf(w, "  %s %-32s actions=%d score=%.1f %s\n", c.ID, c.CompanyName, c.AllocatedActions, c.ActionScore, c.RecommendedPromotion)
	}
}

func topAssignments(res *pipeline.Result, n int) []string {
	var ids []string
	for _, as := range res.Plan.Assignments {
		if len(ids) == n || as.Units == 0 {
			break
		}
		ids = append(ids, as.ID)
	}
	return ids
}
