package config

import (
	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port         string `env:"SERVICE_PORT" envDefault:"8090"`
	PoolID       string `env:"POOL_ID" envDefault:"0x0000000000000000000000000000000000000000000000000000000000000001"`
	PoolAsset0   string `env:"POOL_ASSET0,required"`
	PoolAsset1   string `env:"POOL_ASSET1,required"`
	PoolReserve0 string `env:"POOL_RESERVE0" envDefault:"1000000000000000000000000"`
	PoolReserve1 string `env:"POOL_RESERVE1" envDefault:"1000000000000000000000000"`
	PoolFeeBps   uint32 `env:"POOL_FEE_BPS" envDefault:"30"`
}

func Load() (Config, error) {
	return env.ParseAs[Config]()
}
