package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	app "github.com/okian/learnpath/internal/app"
	"github.com/okian/learnpath/internal/domain/difficulty"
)

// tensorInfo describes one persisted tensor.
type tensorInfo struct {
	Name  string `json:"name"`
	Shape []int  `json:"shape"`
}

func newInspectCmd(c *cli) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List the tensors of the parameter snapshot and check them against the model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := difficulty.ReadSnapshot(c.cfg.ParamsPath)
			if err != nil {
				return err
			}

			infos := make([]tensorInfo, 0, len(snap.Tensors))
			for _, name := range snap.Names() {
				infos = append(infos, tensorInfo{Name: name, Shape: snap.Tensors[name].Shape})
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if err := json.NewEncoder(out).Encode(infos); err != nil {
					return err
				}
			} else {
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TENSOR\tSHAPE")
				for _, ti := range infos {
					fmt.Fprintf(tw, "%s\t%v\n", ti.Name, ti.Shape)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}

			// A snapshot that lists fine may still not fit the configured
			// dimensions; report that as a failure.
			m, err := difficulty.New(app.ModelConfig(c.cfg))
			if err != nil {
				return err
			}
			return m.LoadSnapshot(snap)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print tensors as JSON")
	return cmd
}
