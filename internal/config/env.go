package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Required Alpaca credentials. The SDK clients read these directly from
// the environment; we only verify they are present before starting.
var requiredEnvVars = []string{
	"APCA_API_KEY_ID",
	"APCA_API_SECRET_KEY",
	"APCA_API_BASE_URL",
}

// LoadEnv reads a .env file into the process environment if one exists
// and verifies the broker credentials are set.
func LoadEnv() error {
	// A missing .env is fine; the variables may come from the shell.
	_ = godotenv.Load()

	var missing []string
	for _, key := range requiredEnvVars {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	return nil
}
