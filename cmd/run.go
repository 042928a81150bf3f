package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/sarchlab/cachemodel/cache"
	"github.com/sarchlab/cachemodel/monitoring"
	"github.com/sarchlab/cachemodel/recording"
	"github.com/sarchlab/cachemodel/trace"
)

var runFlags = struct {
	traceFile string

	lineSize     uint64
	numSets      uint64
	ways         int
	addressWidth int
	writePolicy  string
	allocate     string
	replacement  string

	record bool
	dbPath string

	monitor     bool
	monitorPort int

	hitTime     float64
	missPenalty float64
}{}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Replay a memory trace through a cache and report statistics.",
	Run: func(cmd *cobra.Command, args []string) {
		runTrace()
	},
}

func init() {
	flags := runCmd.Flags()

	flags.StringVar(&runFlags.traceFile, "trace", "",
		"trace file to replay (one 'R <hexaddr>' or 'W <hexaddr>' per line)")
	_ = runCmd.MarkFlagRequired("trace")

	flags.Uint64Var(&runFlags.lineSize, "line-size", 64,
		"line size in bytes (power of two)")
	flags.Uint64Var(&runFlags.numSets, "sets", 64,
		"number of sets (power of two)")
	flags.IntVar(&runFlags.ways, "ways", 4, "ways per set")
	flags.IntVar(&runFlags.addressWidth, "address-width", 32,
		"address width in bits")
	flags.StringVar(&runFlags.writePolicy, "write-policy",
		string(cache.WriteBack), "write-through or write-back")
	flags.StringVar(&runFlags.allocate, "allocate",
		string(cache.Allocate), "allocate or no-allocate on store miss")
	flags.StringVar(&runFlags.replacement, "replacement",
		string(cache.LRU), "lru, fifo, random, or plru")

	flags.BoolVar(&runFlags.record, "record", false,
		"record per-access results into a SQLite database")
	flags.StringVar(&runFlags.dbPath, "db", os.Getenv("CACHEMODEL_DB"),
		"database name for --record (default: generated)")

	flags.BoolVar(&runFlags.monitor, "monitor", false,
		"serve statistics over HTTP after the run")
	flags.IntVar(&runFlags.monitorPort, "monitor-port", 0,
		"port for --monitor (default: random)")

	flags.Float64Var(&runFlags.hitTime, "hit-time", 1,
		"hit time used in the AMAT report")
	flags.Float64Var(&runFlags.missPenalty, "miss-penalty", 100,
		"miss penalty used in the AMAT report")

	rootCmd.AddCommand(runCmd)
}

func runTrace() {
	accesses := loadTrace(runFlags.traceFile)

	c, err := cache.MakeBuilder().
		WithLineSize(runFlags.lineSize).
		WithNumSets(runFlags.numSets).
		WithAssociativity(runFlags.ways).
		WithAddressWidth(runFlags.addressWidth).
		WithWritePolicy(cache.WritePolicy(runFlags.writePolicy)).
		WithAllocatePolicy(cache.AllocatePolicy(runFlags.allocate)).
		WithReplacementPolicy(cache.ReplacementPolicy(runFlags.replacement)).
		Build("L1")
	if err != nil {
		log.Fatalf("Error building cache: %v", err)
	}

	runner := trace.NewRunner(c)
	if runFlags.record {
		runner.WithRecorder(recording.New(runFlags.dbPath))
	}

	stats, err := runner.Run(accesses)
	if err != nil {
		log.Fatalf("Error replaying trace: %v", err)
	}

	printReport(c, stats)

	if runFlags.monitor {
		m := monitoring.NewMonitor().
			WithPortNumber(runFlags.monitorPort)
		m.RegisterCache(c)
		m.StartServer()

		// Keep serving until interrupted.
		select {}
	}
}

func loadTrace(path string) []trace.Access {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("Error opening trace: %v", err)
	}
	defer f.Close()

	accesses, err := trace.Parse(f)
	if err != nil {
		log.Fatalf("Error parsing trace: %v", err)
	}

	return accesses
}

func printReport(c *cache.Comp, stats cache.Statistics) {
	fmt.Printf("Cache:       %s\n", c.Name())
	fmt.Printf("Geometry:    %d sets x %d ways x %d B lines (%d B total)\n",
		c.Config().NumSets, c.Config().Associativity,
		c.Config().LineSizeBytes, c.Config().TotalBytes())
	fmt.Printf("Policies:    %s, %s, %s\n",
		c.Config().WritePolicy, c.Config().AllocatePolicy,
		c.Config().ReplacementPolicy)
	fmt.Printf("Accesses:    %d\n", stats.Accesses)
	fmt.Printf("Hits:        %d (%.2f%%)\n",
		stats.Hits, stats.HitRate()*100)
	fmt.Printf("Misses:      %d (%.2f%%)\n",
		stats.Misses, stats.MissRate()*100)
	fmt.Printf("Write-backs: %d\n", stats.WriteBacks)
	fmt.Printf("AMAT:        %.4f (hit time %.2f, miss penalty %.2f)\n",
		c.AMAT(runFlags.hitTime, runFlags.missPenalty),
		runFlags.hitTime, runFlags.missPenalty)
}
