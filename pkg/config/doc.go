// Package config loads typed configuration from environment variables.
//
// Structs describe their variables with github.com/caarlos0/env tags and Load
// fills them, reading ./.env through github.com/joho/godotenv first when the
// file exists. Each type is parsed once per process and cached; Reload and
// ResetCache exist for tests.
//
//	var cfg billing.StripeConfig
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//
// LoadEnv reads additional dotenv files. Values already present in the
// environment always win over file contents.
package config
