package main

import (
	"github.com/okian/worksight/internal/adapters/identity"
	"github.com/okian/worksight/internal/domain/baseline"
	"github.com/spf13/cobra"
)

func newBaselineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Inspect the per-endpoint behavioral baseline",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print count, mean and standard deviation per feature",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, closeLog, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			defer closeLog()

			id, err := identity.Load(cfg.DataDir, cfg.EndpointID)
			if err != nil {
				return err
			}
			bl := baseline.Open(baseline.PathFor(cfg.DataDir, id.EndpointID()))

			type featureView struct {
				Count int64   `json:"count"`
				Mean  float64 `json:"mean"`
				Std   float64 `json:"std"`
			}
			out := struct {
				EndpointID string                 `json:"endpoint_id"`
				Path       string                 `json:"path"`
				Features   map[string]featureView `json:"features"`
			}{
				EndpointID: id.EndpointID(),
				Path:       bl.Path(),
				Features:   make(map[string]featureView),
			}
			for _, name := range bl.Features() {
				if st, ok := bl.Stats(name); ok {
					out.Features[name] = featureView{Count: st.Count, Mean: st.Mean, Std: st.Std}
				}
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	})
	return cmd
}
