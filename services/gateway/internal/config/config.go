package config

import (
	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port              string `env:"SERVICE_PORT" envDefault:"8084"`
	DatabaseURL       string `env:"DATABASE_URL,required"`
	ChainID           int64  `env:"CHAIN_ID" envDefault:"1"`
	VerifyingContract string `env:"VERIFYING_CONTRACT" envDefault:"0x0000000000000000000000000000000000000000"`
	VenueBaseURL      string `env:"VENUE_BASE_URL" envDefault:"http://localhost:8090/venue"`
	VenueAddress      string `env:"VENUE_ADDRESS,required"`
	OwnerAddress      string `env:"OWNER_ADDRESS,required"`
}

func Load() (Config, error) {
	return env.ParseAs[Config]()
}
