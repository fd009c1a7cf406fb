package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/profitpal/internal/client/cli"
	"github.com/dmitrijs2005/profitpal/internal/client/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()

	secret, err := cli.GetSecret(os.Stderr)
	if err != nil {
		log.Fatalf("read secret: %v", err)
	}

	app, err := cli.NewApp(ctx, cfg, secret)
	if err != nil {
		log.Fatalf("%v", err)
	}

	app.Run(ctx)

}
