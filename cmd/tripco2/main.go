package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	_ "embed"
	_ "time/tzdata"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tigerroll/tripco2/internal/app"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/logger"
)

// embeddedConfig embeds the content of the application's YAML configuration file.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

// stagesEnv is the environment override of tripco2.pipeline.stages.
const stagesEnv = "TRIPCO2_PIPELINE_STAGES"

// main parses the command line, installs signal handling and runs the pipeline once.
func main() {
	stages := flag.String("stages", "", "comma-separated stages to run (load,clean,transform,analyze); empty runs all")
	flag.Parse()

	if *stages != "" {
		// The flag wins over the environment and the embedded YAML.
		if err := os.Setenv(stagesEnv, *stages); err != nil {
			logger.Errorf("Failed to apply --stages: %v", err)
			os.Exit(app.ExitConfigError)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Warnf("Received signal '%v'. Stopping the pipeline...", sig)
		cancel()
	}()

	envFilePath := os.Getenv("ENV_FILE_PATH")
	if envFilePath == "" {
		envFilePath = ".env"
	}

	code := app.RunApplication(ctx, envFilePath, embeddedConfig)
	cancel()
	os.Exit(code)
}
