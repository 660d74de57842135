package main

import (
	"context"

	"mijnbib/cmd/mijnbib/commands"
	"mijnbib/lib/serviceutil"
	"mijnbib/lib/telemetry"
)

func main() {
	ctx := serviceutil.SignalContext()

	tel, err := telemetry.SetupFromEnv(ctx, "mijnbib")
	if err != nil {
		serviceutil.Fatal("failed to set up telemetry", err)
	}
	defer tel.Shutdown(context.Background())

	commands.ExecuteContext(ctx)
}
