// Package config loads database connection credentials for the shuffler.
//
// Credentials are read once at startup from an INI credential file in the
// MySQL option-file style:
//
//	[client]
//	user     = app
//	password = secret
//	host     = 127.0.0.1
//	port     = 3306
//
// An optional "dsn" key lets operators hand a full driver DSN to backends
// that prefer one (sqlite in particular). The file is the only credential
// source; if it cannot be read or fails validation the run must abort before
// any connection attempt.
//
// The password is deliberately kept out of every rendered form of the
// credentials: String() redacts it, and error messages reference field names
// only.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/ini.v1"
)

// Section is the credential file section read by Load. It matches the section
// the stock database client tools read, so an existing login profile can be
// reused as-is.
const Section = "client"

// EnvDefaultsFile overrides the default credential file location.
const EnvDefaultsFile = "SHUFFLE_DEFAULTS_FILE"

// Credentials holds the connection parameters loaded from the credential file.
type Credentials struct {
	User     string `ini:"user" validate:"required"`
	Password string `ini:"password"`
	Host     string `ini:"host" validate:"required"`
	Port     int    `ini:"port" validate:"min=1,max=65535"`

	// DSN, when set, is passed verbatim to the storage backend instead of a
	// DSN assembled from the fields above.
	DSN string `ini:"dsn"`
}

// String renders the credentials with the password redacted. Credentials must
// only ever reach logs or errors through this form.
func (c Credentials) String() string {
	pw := "<empty>"
	if c.Password != "" {
		pw = "<redacted>"
	}
	return fmt.Sprintf("user=%s host=%s port=%d password=%s", c.User, c.Host, c.Port, pw)
}

// DefaultPath returns the credential file location: the EnvDefaultsFile
// environment variable when set, otherwise ~/.my.cnf.
func DefaultPath() string {
	if p := os.Getenv(EnvDefaultsFile); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".my.cnf"
	}
	return filepath.Join(home, ".my.cnf")
}

// Load reads and validates credentials from the INI file at path.
//
// Missing keys fall back to client-style defaults (host 127.0.0.1, port 3306)
// before validation, so a minimal file containing only user and password is
// accepted.
func Load(path string) (Credentials, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		AllowBooleanKeys: true, // option files may carry bare flags we ignore
	}, path)
	if err != nil {
		return Credentials{}, fmt.Errorf("read credentials %s: %w", path, err)
	}

	c := Credentials{
		Host: "127.0.0.1",
		Port: 3306,
	}
	if err := f.Section(Section).MapTo(&c); err != nil {
		return Credentials{}, fmt.Errorf("parse credentials %s: %w", path, err)
	}

	if err := validate(c); err != nil {
		return Credentials{}, fmt.Errorf("credentials %s: %w", path, err)
	}
	return c, nil
}

// validate applies the struct tag rules. Validation failures are flattened to
// one message naming every offending field; values are never echoed back.
func validate(c Credentials) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	err := v.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", strings.ToLower(fe.Field())))
		default:
			msgs = append(msgs, fmt.Sprintf("%s fails %q", strings.ToLower(fe.Field()), fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
