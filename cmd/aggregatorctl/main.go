package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	if err := Execute(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("aggregatorctl: fatal error")
	}
}
