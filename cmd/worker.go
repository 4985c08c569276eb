package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/salesintel/infra/logger"
	"github.com/kilianp07/salesintel/infra/mqtt"
)

var (
	workerDelay    time.Duration
	workerDropRate float64
	workerSeed     uint64
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Simulate sales workers acknowledging published actions over MQTT",
	RunE:  worker,
}

func init() {
	workerCmd.Flags().DurationVar(&workerDelay, "delay", 0, "delay before each acknowledgment")
	workerCmd.Flags().Float64Var(&workerDropRate, "drop-rate", 0, "probability of dropping an acknowledgment")
	workerCmd.Flags().Uint64Var(&workerSeed, "seed", 1, "seed for dropped acknowledgments")
	rootCmd.AddCommand(workerCmd)
}

func worker(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if workerDropRate < 0 || workerDropRate > 1 {
		return fmt.Errorf("drop-rate must be in [0,1]")
	}
	var strategy mqtt.AckStrategy = mqtt.AutoAck{Delay: workerDelay}
	if workerDropRate > 0 {
		strategy = mqtt.NewRandomAck(workerDelay, workerDropRate, workerSeed)
	}
	r, err := mqtt.NewResponder(cfg.MQTT, strategy)
	if err != nil {
		return fmt.Errorf("mqtt responder: %w", err)
	}
	r.Run(ctx)
	received, acked := r.Stats()
	logger.New("worker").Infof("worker stopped: %d assignments received, %d acknowledged", received, acked)
	return nil
}
