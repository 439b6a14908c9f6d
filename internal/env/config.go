package env

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Host      string `env:"GOINGNATS_HOST,default=0.0.0.0"`
	Port      int    `env:"GOINGNATS_PORT,default=4222"`
	Name      string `env:"GOINGNATS_NAME,default=goingnats"`
	Debug     bool   `env:"GOINGNATS_DEBUG"`
	DebugHTTP bool   `env:"GOINGNATS_DEBUG_HTTP"`
}

func LoadConfig(ctx context.Context) (*Config, error) {
	config := Config{}

	if err := godotenv.Load(".env.local"); err != nil {
		if !os.IsNotExist(err) {
			panic(err)
		}
	}

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
