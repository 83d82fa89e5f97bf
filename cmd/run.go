package cmd

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/parallel-qsim/qsim/sim"
	"github.com/parallel-qsim/qsim/sim/exchange"
	"github.com/parallel-qsim/qsim/sim/network"
	"github.com/parallel-qsim/qsim/sim/partition"
	"github.com/parallel-qsim/qsim/sim/wire"
)

var (
	configPath  string   // YAML run configuration
	metricsAddr string   // Address for the Prometheus scrape endpoint, empty disables it
	grpcRank    int      // Rank of this process in a distributed run, -1 runs all ranks in-process
	grpcPeers   []string // Listen addresses of all ranks, indexed by rank
)

// runCmd executes the simulation described by the config file
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the traffic simulation",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := sim.LoadConfig(configPath)
		if err != nil {
			logrus.Fatalf("Loading config: %v", err)
		}

		global, err := network.ReadFile(cfg.NetworkFile)
		if err != nil {
			logrus.Fatalf("Loading network: %v", err)
		}
		if cfg.Partitions > 1 && global.NumPartitions() != uint32(cfg.Partitions) {
			logrus.Infof("Partitioning network into %d parts", cfg.Partitions)
			if err := partitionNetwork(global, cfg.Partitions, cfg.Seed); err != nil {
				logrus.Fatalf("Partitioning network: %v", err)
			}
		}

		garage, err := sim.ReadGarage(cfg.VehiclesFile)
		if err != nil {
			logrus.Fatalf("Loading vehicles: %v", err)
		}
		plans, err := readPlans(cfg.PlansFile)
		if err != nil {
			logrus.Fatalf("Loading plans: %v", err)
		}
		if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
			logrus.Fatalf("Creating output directory: %v", err)
		}

		registry := prometheus.NewRegistry()
		if metricsAddr != "" {
			serveMetrics(registry, metricsAddr)
		}

		startTime := time.Now()
		if grpcRank >= 0 {
			err = runDistributedRank(cfg, global, garage, plans, registry)
		} else {
			err = runAllRanks(cfg, global, garage, plans, registry)
		}
		if err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		logrus.Infof("Simulation complete after %v.", time.Since(startTime))
	},
}

// runAllRanks drives every partition as a goroutine over channels.
func runAllRanks(cfg *sim.Config, global *network.Network, garage *sim.Garage, plans *wire.Plans, registry *prometheus.Registry) error {
	return sim.RunChannelRanks(cfg, global, garage, plans, func(rank uint32) []sim.EventsSubscriber {
		subs := []sim.EventsSubscriber{sim.NewMetrics(registry, rank)}
		writer, err := sim.NewEventsFileWriter(eventsPath(cfg.OutputDir, rank))
		if err != nil {
			logrus.Fatalf("Creating events file: %v", err)
		}
		return append(subs, writer)
	})
}

// runDistributedRank drives a single partition, exchanging over gRPC.
func runDistributedRank(cfg *sim.Config, global *network.Network, garage *sim.Garage, plans *wire.Plans, registry *prometheus.Registry) error {
	if len(grpcPeers) != cfg.Partitions {
		return fmt.Errorf("got %d peer addresses for %d partitions", len(grpcPeers), cfg.Partitions)
	}
	comm, err := exchange.NewGRPCCommunicator(uint32(grpcRank), grpcPeers)
	if err != nil {
		return err
	}
	defer comm.Close()

	writer, err := sim.NewEventsFileWriter(eventsPath(cfg.OutputDir, comm.Rank()))
	if err != nil {
		return err
	}
	metrics := sim.NewMetrics(registry, comm.Rank())
	s, err := sim.BuildRank(cfg, global, garage, plans, comm, metrics, writer)
	if err != nil {
		return err
	}
	return s.Run()
}

func partitionNetwork(global *network.Network, parts int, seed int64) error {
	graph := partition.NewGraph(global)
	assignment, err := partition.NewKWay(seed).Partition(graph, parts)
	if err != nil {
		return err
	}
	if err := global.ApplyPartition(assignment); err != nil {
		return err
	}
	logrus.Infof("Partition quality: %s", partition.Evaluate(graph, assignment, parts))
	return nil
}

func readPlans(path string) (*wire.Plans, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	plans := new(wire.Plans)
	if err := plans.Unmarshal(data); err != nil {
		return nil, err
	}
	return plans, nil
}

func eventsPath(outputDir string, rank uint32) string {
	return filepath.Join(outputDir, fmt.Sprintf("events_%d.bin", rank))
}

func serveMetrics(registry *prometheus.Registry, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logrus.Errorf("Metrics endpoint failed: %v", err)
		}
	}()
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "config.yaml", "Run configuration file")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	runCmd.Flags().IntVar(&grpcRank, "rank", -1, "Rank of this process, -1 runs all partitions in-process")
	runCmd.Flags().StringSliceVar(&grpcPeers, "peers", nil, "Comma-separated listen addresses of all ranks")

	rootCmd.AddCommand(runCmd)
}
