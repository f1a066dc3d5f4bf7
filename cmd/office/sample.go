package main

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"agent_office/internal/clock"
	"agent_office/internal/config"
	"agent_office/internal/domain"
	"agent_office/internal/roster"
)

func newSampleCmd(v *viper.Viper) *cobra.Command {
	var count int
	var seed uint64
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Print a handful of generated events without starting the server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if count <= 0 {
				return fmt.Errorf("count must be positive")
			}
			if seed == 0 {
				cfg, err := config.Load(v.GetString("config"))
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				seed = cfg.Scheduler.Seed
			}

			r := roster.Default()
			gen, err := newGenerator(r, clock.System{}, seed)
			if err != nil {
				return fmt.Errorf("build generator: %w", err)
			}
			src := rand.NewPCG(seed, seed+1)
			if seed == 0 {
				src = rand.NewPCG(rand.Uint64(), rand.Uint64())
			}
			coin := rand.New(src)

			events := make([]domain.Event, 0, count)
			for i := 0; i < count; i++ {
				events = append(events, gen.Generate(coin.Float64() > 0.5))
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(events)
			}

			if _, err := fmt.Fprintf(out, "loaded personas: %d\n", len(r.Entries)); err != nil {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PERSONA\tCATEGORY\tCONTENT")
			for _, ev := range events {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", ev.PersonaName, ev.Category, ev.Content)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&count, "count", 5, "number of events to generate")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed (0 picks one)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print events as JSON")
	return cmd
}
