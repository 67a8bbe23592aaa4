// Copyright 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rancher

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	envURL       = "RANCHER_URL"
	envToken     = "RANCHER_TOKEN"
	envVerifySSL = "RANCHER_VERIFY_SSL"
	envTimeout   = "RANCHER_TIMEOUT"

	defaultTimeout = 30 * time.Second
)

// Config is the Rancher connection configuration.
type Config struct {
	// URL is the Rancher server URL, with or without the /v3 suffix.
	URL string
	// Token is the bearer token.
	Token string
	// VerifySSL toggles TLS certificate verification.
	VerifySSL bool
	// Timeout bounds individual API requests.
	Timeout time.Duration
}

// ConfigFromEnv reads the connection configuration from the process
// environment: RANCHER_URL, RANCHER_TOKEN, RANCHER_VERIFY_SSL (default
// true) and RANCHER_TIMEOUT in seconds (default 30).
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		URL:       os.Getenv(envURL),
		Token:     os.Getenv(envToken),
		VerifySSL: true,
		Timeout:   defaultTimeout,
	}

	if v := os.Getenv(envVerifySSL); v != "" {
		verify, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s value %q: %w", envVerifySSL, v, err)
		}
		cfg.VerifySSL = verify
	}

	if v := os.Getenv(envTimeout); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil || seconds <= 0 {
			return Config{}, fmt.Errorf("invalid %s value %q, expected a positive number of seconds", envTimeout, v)
		}
		cfg.Timeout = time.Duration(seconds) * time.Second
	}

	return cfg, nil
}
