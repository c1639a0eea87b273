// Command tspcontrol sends a restart_stage request to a running tsp
// pipeline's control channel and prints the response, mirroring TSDuck's
// own tsp/tspcontrol split (spec §6, §10.4).
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/willdelstrother/tsduck/internal/control"
)

func main() {
	var addr string
	var sameArgs bool
	var argsCSV string

	root := &cobra.Command{
		Use:   "tspcontrol STAGE_INDEX",
		Short: "Request an in-place restart of a running pipeline stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var index int
			if _, err := fmt.Sscanf(args[0], "%d", &index); err != nil {
				return fmt.Errorf("tspcontrol: invalid stage index %q: %w", args[0], err)
			}

			var newArgs []string
			effectiveSameArgs := sameArgs
			if argsCSV != "" {
				newArgs = strings.Split(argsCSV, ",")
				effectiveSameArgs = false
			}

			client := control.NewClient(addr)
			correlationID, resp, err := client.RestartStage(index, newArgs, effectiveSameArgs)
			if err != nil {
				return fmt.Errorf("tspcontrol: %w", err)
			}

			fmt.Printf("correlation_id=%s status=%s", correlationID, resp.Status)
			if resp.Error != "" {
				fmt.Printf(" error=%q", resp.Error)
			}
			fmt.Println()

			if resp.Status != "ok" {
				os.Exit(1)
			}
			return nil
		},
	}
	root.Flags().StringVarP(&addr, "addr", "a", "127.0.0.1:4190", "control channel address")
	root.Flags().BoolVar(&sameArgs, "same-args", true, "restart with the stage's current arguments")
	root.Flags().StringVar(&argsCSV, "args", "", "comma-separated replacement argument vector (implies --same-args=false)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
