package main

import (
	"context"
	"log"
	"os"

	"github.com/pdcpos/posoffline/internal/app"
	"github.com/pdcpos/posoffline/internal/buildinfo"
	"github.com/pdcpos/posoffline/internal/config"
)

func main() {
	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()

	a, err := app.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := a.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}
}
