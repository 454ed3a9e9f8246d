package main

import "time"

type Config struct {
	Addr            string        `envconfig:"ADDR" default:":8080"`
	DBDSN           string        `envconfig:"DB_DSN"`
	RedisAddr       string        `envconfig:"REDIS_ADDR"`
	JWTSecret       string        `envconfig:"JWT_SECRET" required:"true"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	DevMode         bool          `envconfig:"DEV_MODE" default:"false"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}
