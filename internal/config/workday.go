package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// WorkdayConfig holds the OAuth client and tenant settings for Workday.
type WorkdayConfig struct {
	AuthURL      string `yaml:"auth_url"`
	TokenURL     string `yaml:"token_url"`
	BaseURL      string `yaml:"base_url"`
	Tenant       string `yaml:"tenant"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
	ResponseType string `yaml:"response_type"`
	GrantType    string `yaml:"grant_type"`
	Scope        string `yaml:"scope"`
}

// LoadWorkday reads the optional settings file at path (YAML or JSON), then
// overlays WORKDAY_<KEY> and bare <KEY> environment variables, in that order
// of preference, and fills derivable fields.
func LoadWorkday(path string) (WorkdayConfig, error) {
	var wd WorkdayConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return wd, fmt.Errorf("read workday config %s: %w", path, err)
		}
		// JSON is a subset of YAML, so one decoder covers both formats.
		if err := yaml.Unmarshal(data, &wd); err != nil {
			return wd, fmt.Errorf("parse workday config %s: %w", path, err)
		}
	}

	for key, field := range wd.fields() {
		if v := os.Getenv("WORKDAY_" + strings.ToUpper(key)); v != "" {
			*field = v
		} else if v := os.Getenv(strings.ToUpper(key)); v != "" {
			*field = v
		}
	}

	wd.applyDefaults()
	return wd, nil
}

func (w *WorkdayConfig) fields() map[string]*string {
	return map[string]*string{
		"auth_url":      &w.AuthURL,
		"token_url":     &w.TokenURL,
		"base_url":      &w.BaseURL,
		"tenant":        &w.Tenant,
		"client_id":     &w.ClientID,
		"client_secret": &w.ClientSecret,
		"redirect_uri":  &w.RedirectURI,
		"response_type": &w.ResponseType,
		"grant_type":    &w.GrantType,
		"scope":         &w.Scope,
	}
}

// applyDefaults derives base URL and tenant from a token URL of the form
// https://host/ccx/oauth2/<tenant>/token when they are not set explicitly.
func (w *WorkdayConfig) applyDefaults() {
	if w.ResponseType == "" {
		w.ResponseType = "code"
	}
	if w.GrantType == "" {
		w.GrantType = "authorization_code"
	}
	w.BaseURL = strings.TrimRight(w.BaseURL, "/")
	if idx := strings.Index(w.TokenURL, "/ccx/"); idx >= 0 {
		if w.BaseURL == "" {
			w.BaseURL = w.TokenURL[:idx]
		}
		if w.Tenant == "" {
			parts := strings.Split(strings.TrimRight(w.TokenURL, "/"), "/")
			if len(parts) >= 2 {
				w.Tenant = parts[len(parts)-2]
			}
		}
	}
}

// Validate reports the first missing setting needed for the OAuth flow.
func (w WorkdayConfig) Validate() error {
	required := []struct {
		name, value string
	}{
		{"auth_url", w.AuthURL},
		{"token_url", w.TokenURL},
		{"client_id", w.ClientID},
		{"redirect_uri", w.RedirectURI},
		{"base_url", w.BaseURL},
		{"tenant", w.Tenant},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("workday %s is not configured", r.name)
		}
	}
	return nil
}
