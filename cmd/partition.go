package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/parallel-qsim/qsim/sim/network"
	"github.com/parallel-qsim/qsim/sim/partition"
)

var (
	partitionInput   string // Input network file
	partitionOutput  string // Output network file with partition assignment
	partitionParts   int    // Number of partitions
	partitionSeed    int64  // Seed for the partitioner
	partitionCompare bool   // Also report the random-baseline quality
)

// partitionCmd splits a network file and stores the assignment in place
var partitionCmd = &cobra.Command{
	Use:   "partition",
	Short: "Partition a network file for a distributed run",
	Run: func(cmd *cobra.Command, args []string) {
		global, err := network.ReadFile(partitionInput)
		if err != nil {
			logrus.Fatalf("Loading network: %v", err)
		}
		graph := partition.NewGraph(global)

		assignment, err := partition.NewKWay(partitionSeed).Partition(graph, partitionParts)
		if err != nil {
			logrus.Fatalf("Partitioning: %v", err)
		}
		logrus.Infof("k-way: %s", partition.Evaluate(graph, assignment, partitionParts))

		if partitionCompare {
			baseline, err := (&partition.Random{Seed: partitionSeed}).Partition(graph, partitionParts)
			if err != nil {
				logrus.Fatalf("Baseline partitioning: %v", err)
			}
			logrus.Infof("random baseline: %s", partition.Evaluate(graph, baseline, partitionParts))
		}

		if err := global.ApplyPartition(assignment); err != nil {
			logrus.Fatalf("Applying assignment: %v", err)
		}
		if err := global.WriteFile(partitionOutput); err != nil {
			logrus.Fatalf("Writing network: %v", err)
		}
		logrus.Infof("Wrote partitioned network to %s", partitionOutput)
	},
}

func init() {
	partitionCmd.Flags().StringVar(&partitionInput, "input", "network.bin", "Input network file")
	partitionCmd.Flags().StringVar(&partitionOutput, "output", "network.partitioned.bin", "Output network file")
	partitionCmd.Flags().IntVar(&partitionParts, "parts", 2, "Number of partitions")
	partitionCmd.Flags().Int64Var(&partitionSeed, "seed", 4711, "Partitioner seed")
	partitionCmd.Flags().BoolVar(&partitionCompare, "compare-random", false, "Also report the random-baseline quality")

	rootCmd.AddCommand(partitionCmd)
}
