// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company
// SPDX-License-Identifier: Apache-2.0

package altai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sapcc/go-bits/easypg"
	"github.com/sapcc/go-bits/errext"
	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/must"
	"github.com/sapcc/go-bits/osext"
	"github.com/sapcc/go-bits/pluggable"
)

// Configuration contains all configuration values that are not specific to a
// certain driver.
type Configuration struct {
	// APIPublicURL is the base URL under which the API is reachable by clients,
	// e.g. "https://altai.example.com". All hrefs in responses are built on it.
	APIPublicURL string
	// InviteTTL is how long an invite code can be redeemed.
	InviteTTL time.Duration
	// ResetTokenTTL is how long a password reset code can be redeemed.
	ResetTokenTTL time.Duration
	// DefaultInstanceTTL is the lifetime assigned to new instances when the
	// request does not specify an expiry date. Zero means no expiry.
	DefaultInstanceTTL time.Duration
}

// Href builds an absolute URL for the given API path.
func (cfg Configuration) Href(path string, args ...any) string {
	if len(args) > 0 {
		path = fmt.Sprintf(path, args...)
	}
	return strings.TrimSuffix(cfg.APIPublicURL, "/") + path
}

// GetDatabaseURLFromEnvironment reads the ALTAI_DB_* environment variables.
func GetDatabaseURLFromEnvironment() (dbURL url.URL, dbName string) {
	dbName = osext.GetenvOrDefault("ALTAI_DB_NAME", "altai")
	return must.Return(easypg.URLFrom(easypg.URLParts{
		HostName:          osext.GetenvOrDefault("ALTAI_DB_HOSTNAME", "localhost"),
		Port:              osext.GetenvOrDefault("ALTAI_DB_PORT", "5432"),
		UserName:          osext.GetenvOrDefault("ALTAI_DB_USERNAME", "postgres"),
		Password:          os.Getenv("ALTAI_DB_PASSWORD"),
		ConnectionOptions: os.Getenv("ALTAI_DB_CONNECTION_OPTIONS"),
		DatabaseName:      dbName,
	})), dbName
}

// ParseConfiguration obtains an altai.Configuration instance from the
// corresponding environment variables. Aborts on error.
func ParseConfiguration() Configuration {
	logg.Debug("parsing configuration...")
	cfg, errs := parseConfiguration()
	errs.LogFatalIfError()
	return cfg
}

// parseConfiguration is the part of ParseConfiguration that can be tested.
// All problems are reported at once instead of stopping at the first one.
func parseConfiguration() (cfg Configuration, errs errext.ErrorSet) {
	cfg.APIPublicURL = os.Getenv("ALTAI_API_PUBLIC_URL")
	if cfg.APIPublicURL == "" {
		errs.Addf("missing environment variable: ALTAI_API_PUBLIC_URL")
	} else if u, err := url.Parse(cfg.APIPublicURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs.Addf("malformed ALTAI_API_PUBLIC_URL: expected an http(s) URL, but got %q", cfg.APIPublicURL)
	}

	parseDuration := func(key, defaultValue string) time.Duration {
		value := osext.GetenvOrDefault(key, defaultValue)
		d, err := time.ParseDuration(value)
		switch {
		case err != nil:
			errs.Addf("malformed %s: %s", key, err.Error())
		case d < 0:
			errs.Addf("malformed %s: %q is negative", key, value)
		}
		return d
	}
	cfg.InviteTTL = parseDuration("ALTAI_INVITE_TTL", "168h")
	cfg.ResetTokenTTL = parseDuration("ALTAI_RESET_TOKEN_TTL", "24h")
	cfg.DefaultInstanceTTL = parseDuration("ALTAI_DEFAULT_INSTANCE_TTL", "0s")
	return cfg, errs
}

// newDriver parses a config JSON as found in an ALTAI_DRIVER_* variable,
// initializes the respective driver, and unmarshals config parameters into it.
//
// This is the reusable part of the implementations for NewAuthDriver and
// NewCloudDriver.
func newDriver[P pluggable.Plugin](driverType string, registry pluggable.Registry[P], configJSON string, init func(P) error) (P, error) {
	var zero P // for error returns

	var cfg struct {
		PluginTypeID string          `json:"type"`
		Params       json.RawMessage `json:"params"`
	}
	err := UnmarshalJSONStrict([]byte(configJSON), &cfg)
	if err != nil {
		return zero, fmt.Errorf("cannot unmarshal %s config %q: %w", driverType, configJSON, err)
	}
	if len(cfg.Params) == 0 {
		// configJSON was just a type, e.g. `{"type":"unittest"}`
		cfg.Params = json.RawMessage("{}")
	}
	logg.Debug("initializing %s %q", driverType, configJSON)

	driver, ok := registry.TryInstantiate(cfg.PluginTypeID).Unpack()
	if !ok {
		return zero, fmt.Errorf("no such %s: %q", driverType, cfg.PluginTypeID)
	}
	err = json.Unmarshal([]byte(cfg.Params), driver)
	if err != nil {
		return zero, fmt.Errorf("cannot unmarshal params for %s %q: %w", driverType, cfg.PluginTypeID, err)
	}
	err = init(driver)
	if err != nil {
		return zero, fmt.Errorf("could not initialize %s %q: %w", driverType, cfg.PluginTypeID, err)
	}
	return driver, nil
}

// UnmarshalJSONStrict is like json.Unmarshal(), but rejects unknown fields.
func UnmarshalJSONStrict(buf []byte, target any) error {
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}
