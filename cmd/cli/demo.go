package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/canopy-network/smt/demo"
	"github.com/canopy-network/smt/metrics"
	"github.com/spf13/cobra"
)

var (
	factorA, factorB uint64
	corruptWords     []int

	demoCmd = &cobra.Command{
		Use:   "demo",
		Short: "check two factors and commit whether the nine word tree verifies",
		Long:  "check two factors and commit whether the nine word tree verifies; factors are read as JSON numbers from stdin unless both flags are set",
		RunE: func(cmd *cobra.Command, args []string) error {
			m := metrics.New()
			srv := metrics.NewServer(m, config.MetricsConfig, l)
			srv.Start()
			defer srv.Stop()
			var in io.Reader = os.Stdin
			if factorA != 0 && factorB != 0 {
				in = bytes.NewBufferString(fmt.Sprintf("%d %d", factorA, factorB))
			}
			env := demo.NewJournalEnv(in, cmd.OutOrStdout())
			if err := demo.NewInMemory(l, m).Run(env, corruptWords...); err != nil {
				return err
			}
			return nil
		},
	}
)

func init() {
	demoCmd.Flags().Uint64Var(&factorA, "a", 0, "first factor")
	demoCmd.Flags().Uint64Var(&factorB, "b", 0, "second factor")
	demoCmd.Flags().IntSliceVar(&corruptWords, "corrupt", nil, "indices of words to tamper with before proving them")
}
