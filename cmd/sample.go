package cmd

import (
	"fmt"
	"io"
	"math"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/aroellin/rstisim/sim"
	"github.com/aroellin/rstisim/sim/config"
)

// sampleCmd draws from the model's 'test.distribution'
var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Sample the distribution defined under 'test.distribution'",
	Run: func(cmd *cobra.Command, args []string) {
		v := mustLoadSettings(cmd)
		var atleast *float64
		if cmd.Flags().Changed("atleast") || v.IsSet("atleast") {
			a := v.GetFloat64("atleast")
			atleast = &a
		}
		if err := sampleDistribution(cmd.OutOrStdout(), v.GetString("config"), v.GetInt("n"), atleast); err != nil {
			logrus.Fatalf("Sampling failed: %v", err)
		}
	},
}

func sampleDistribution(w io.Writer, path string, n int, atleast *float64) error {
	if n <= 0 {
		return fmt.Errorf("sample size must be positive, got %d", n)
	}
	root, err := config.Load(path)
	if err != nil {
		return err
	}
	s, err := sim.New(root)
	if err != nil {
		return err
	}
	defer s.Close()

	xs, err := s.TestDistribution(n, atleast)
	if err != nil {
		return err
	}
	mean, std := stat.MeanStdDev(xs, nil)
	if n == 1 {
		std = math.NaN()
	}
	_, _ = fmt.Fprintf(w, "%-8s %d\n", "n", n)
	if atleast != nil {
		_, _ = fmt.Fprintf(w, "%-8s %g\n", "atleast", *atleast)
	}
	_, _ = fmt.Fprintf(w, "%-8s %g\n", "mean", mean)
	_, _ = fmt.Fprintf(w, "%-8s %g\n", "stddev", std)
	_, _ = fmt.Fprintf(w, "%-8s %g\n", "min", floats.Min(xs))
	_, _ = fmt.Fprintf(w, "%-8s %g\n", "max", floats.Max(xs))
	return nil
}

func init() {
	sampleCmd.Flags().IntP("n", "n", 1000, "Number of samples")
	sampleCmd.Flags().Float64("atleast", 0, "Condition the samples on exceeding this value")
}
