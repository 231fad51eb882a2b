package config

import (
	"flag"
	"os"
	"time"

	"github.com/pdcpos/posoffline/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string   base URL of the backend server
//	-d string   path to the local database file
//	-i int      sync interval in seconds
//	-b int      sync batch size
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-i", "-b"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "base URL of the backend server")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "path to the local database file")
	syncInterval := fs.Int("i", int(cfg.SyncInterval.Seconds()), "sync interval (in seconds)")
	fs.IntVar(&cfg.SyncBatchSize, "b", cfg.SyncBatchSize, "sync batch size")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.SyncInterval = time.Duration(*syncInterval) * time.Second
}
