package devserver

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

// Config holds development backend configuration
type Config struct {
	// JWTSecret signs access tokens with HS256. At least 32 bytes.
	JWTSecret  []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// LoginRate and LoginBurst throttle login attempts per client IP.
	LoginRate  rate.Limit
	LoginBurst int

	CORSOrigins []string

	// EmailSandbox marks email sends as simulated in responses.
	EmailSandbox bool

	BcryptCost int
}

// DefaultConfig returns a development configuration. The secret must still
// be set.
func DefaultConfig() Config {
	return Config{
		AccessTTL:    15 * time.Minute,
		RefreshTTL:   7 * 24 * time.Hour,
		LoginRate:    rate.Every(2 * time.Second),
		LoginBurst:   5,
		CORSOrigins:  []string{"http://localhost:5173"},
		EmailSandbox: true,
		BcryptCost:   bcrypt.DefaultCost,
	}
}

func (c Config) validate() error {
	if len(c.JWTSecret) < 32 {
		return errors.New("jwt secret must be at least 32 bytes")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.LoginBurst <= 0 {
		return errors.New("login burst must be positive")
	}
	return nil
}
