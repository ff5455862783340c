package cmd

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/aroellin/rstisim/sim"
	"github.com/aroellin/rstisim/sim/config"
)

// checkCmd builds a model without running it
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate a model configuration and print what it defines",
	Run: func(cmd *cobra.Command, args []string) {
		v := mustLoadSettings(cmd)
		if err := checkModel(cmd.OutOrStdout(), v.GetString("config")); err != nil {
			logrus.Fatalf("Invalid model: %v", err)
		}
	},
}

func checkModel(w io.Writer, path string) error {
	root, err := config.Load(path)
	if err != nil {
		return err
	}
	s, err := sim.New(root)
	if err != nil {
		return err
	}
	defer s.Close()

	minAge, maxAge := s.AgeRange()
	capacity, _, _ := s.SchedulerSizes()
	_, _ = fmt.Fprintf(w, "%-22s %s\n", "model", path)
	_, _ = fmt.Fprintf(w, "%-22s %d\n", "seed", s.Seed())
	_, _ = fmt.Fprintf(w, "%-22s %d\n", "population", s.Population().Target())
	_, _ = fmt.Fprintf(w, "%-22s [%g, %g] days\n", "age range", minAge, maxAge)
	_, _ = fmt.Fprintf(w, "%-22s %d\n", "scheduler capacity", capacity)
	names := s.TypeNames()
	for _, c := range slices.Sorted(maps.Keys(names)) {
		types := names[c]
		if len(types) == 0 {
			continue
		}
		_, _ = fmt.Fprintf(w, "%-22s %d: %s\n", c+" types", len(types), strings.Join(types, ", "))
	}
	return nil
}
