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

// Package rancher provides a read-only façade over the Rancher management
// API used for downstream cluster discovery.
package rancher

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	ctrl "sigs.k8s.io/controller-runtime"
)

const (
	requestIDHeader = "X-Request-Id"

	// ClusterStateActive is the only Rancher cluster state eligible for targeting.
	ClusterStateActive = "active"
)

// Cluster is a downstream cluster as known to the Rancher management API.
type Cluster struct {
	// ID is the Rancher cluster id, e.g. "c-m-abcdef" or "local".
	ID string `json:"id"`
	// Name is the display name.
	Name string `json:"name"`
	// State is the Rancher lifecycle state.
	State string `json:"state"`
	// Labels are the cluster labels.
	Labels map[string]string `json:"labels"`
}

// ClusterLister is the discovery surface consumed by the resolver.
// Tests substitute a fake implementation.
type ClusterLister interface {
	// Clusters returns every cluster known to the management API.
	Clusters(ctx context.Context) ([]Cluster, error)
}

// APIError is returned for non-2xx management API responses.
type APIError struct {
	Message string
	Status  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("rancher API error: status %d: %s", e.Status, e.Message)
}

// IsTransient reports whether the given error is worth retrying: network
// failures and 5xx responses. 4xx responses are permanent.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError
	}
	return err != nil
}

// Client talks to the Rancher management API ("/v3").
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// New constructs a Client from the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" || cfg.Token == "" {
		return nil, errors.New("both the Rancher URL and token are required")
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !cfg.VerifySSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // explicit operator opt-out
	}

	return &Client{
		baseURL: normalizeBaseURL(cfg.URL),
		token:   cfg.Token,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
	}, nil
}

// normalizeBaseURL guarantees the base URL addresses the v3 API root.
func normalizeBaseURL(raw string) string {
	trimmed := strings.TrimSuffix(raw, "/")
	if strings.HasSuffix(trimmed, "/v3") {
		return trimmed
	}
	return trimmed + "/v3"
}

type collection struct {
	Data []Cluster `json:"data"`
}

// Clusters lists all clusters from the management API. Transient failures
// are retried with exponential backoff within the caller's context.
func (c *Client) Clusters(ctx context.Context) ([]Cluster, error) {
	var clusters []Cluster

	operation := func() error {
		data, err := c.get(ctx, "clusters")
		if err != nil {
			if !IsTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		}

		var coll collection
		if err := json.Unmarshal(data, &coll); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode cluster collection: %w", err))
		}

		clusters = coll.Data
		return nil
	}

	bo := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(time.Second),
		backoff.WithMaxElapsedTime(30*time.Second),
	), ctx)

	if err := backoff.Retry(operation, bo); err != nil {
		return nil, fmt.Errorf("failed to list Rancher clusters: %w", err)
	}

	return clusters, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	u, err := url.JoinPath(c.baseURL, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to build request URL for %s: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", endpoint, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		ctrl.LoggerFrom(ctx).V(1).Info("Rancher API request failed", "endpoint", endpoint, "status", resp.StatusCode)
		return nil, &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	return body, nil
}
