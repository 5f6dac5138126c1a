// deploycheck verifies the docker-compose manifest against the wiring the
// service expects at runtime, so manifest drift is caught before a deploy.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/zhumanklv/yandex-academy-task/deploy"
	"github.com/zhumanklv/yandex-academy-task/logging"
)

func main() {
	manifestPath := flag.String("manifest", "docker-compose.yml", "path of the compose manifest to verify")
	flag.Parse()

	logging.Setup(os.Stdout, "info")

	manifest, err := deploy.LoadFile(context.Background(), *manifestPath)
	if err != nil {
		log.Fatal().Err(err).Msgf("Cannot load %s", *manifestPath)
	}

	violations := manifest.Verify()
	if len(violations) == 0 {
		log.Info().Msgf("%s: OK", *manifestPath)
		return
	}

	for _, violation := range violations {
		log.Error().Msgf("%s: %s", *manifestPath, violation)
	}
	os.Exit(1)
}
