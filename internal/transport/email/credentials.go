package email

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"feedwatch/internal/domain"
)

// DefaultCredentialsPath is read when no path is configured.
const DefaultCredentialsPath = "smtp_config.toml"

// Credentials are read once at startup from a TOML file:
//
//	smtp_host = "smtp.example.com"
//	smtp_user = "bot@example.com"
//	smtp_password = "secret"
//	smtp_port = 465        # optional
//	from = "Feed <bot@example.com>"  # optional, defaults to smtp_user
//	starttls = false       # optional, implicit TLS otherwise
type Credentials struct {
	Host     string `toml:"smtp_host"`
	User     string `toml:"smtp_user"`
	Password string `toml:"smtp_password"`
	Port     int    `toml:"smtp_port"`
	From     string `toml:"from"`
	StartTLS bool   `toml:"starttls"`
}

// LoadCredentials reads and validates the credentials file.
// Any problem is reported as domain.ErrConfiguration.
func LoadCredentials(path string) (Credentials, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultCredentialsPath
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("unable to read %s: %v: %w", path, err, domain.ErrConfiguration)
	}

	var c Credentials
	dec := toml.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Credentials{}, fmt.Errorf("%s: unknown keys:\n%s: %w", path, strict.String(), domain.ErrConfiguration)
		}
		return Credentials{}, fmt.Errorf("%s: %v: %w", path, err, domain.ErrConfiguration)
	}
	if err := c.validate(); err != nil {
		return Credentials{}, fmt.Errorf("%s: %v: %w", path, err, domain.ErrConfiguration)
	}
	return c, nil
}

func (c *Credentials) validate() error {
	c.Host = strings.TrimSpace(c.Host)
	c.User = strings.TrimSpace(c.User)
	var missing []string
	if c.Host == "" {
		missing = append(missing, "smtp_host")
	}
	if c.User == "" {
		missing = append(missing, "smtp_user")
	}
	if c.Password == "" {
		missing = append(missing, "smtp_password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("smtp_port %d out of range", c.Port)
	}
	if c.Port == 0 {
		if c.StartTLS {
			c.Port = 587
		} else {
			c.Port = 465
		}
	}
	if strings.TrimSpace(c.From) == "" {
		c.From = c.User
	}
	return nil
}
