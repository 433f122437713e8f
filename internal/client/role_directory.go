// Package client holds clients for the external collaborators: the identity
// role directory and the mail relay.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// RoleDirectoryClient resolves user roles from the platform identity
// directory over HTTP. Role assignment and management live there, not here.
type RoleDirectoryClient struct {
	baseURL string
	http    *http.Client
}

// NewRoleDirectoryClient creates a directory client.
func NewRoleDirectoryClient(baseURL string) *RoleDirectoryClient {
	return &RoleDirectoryClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

type rolesResponse struct {
	Roles []string `json:"roles"`
}

// GetRoles returns the roles the user holds right now. Called at action time
// and again at subscription time; results are never cached.
func (c *RoleDirectoryClient) GetRoles(ctx context.Context, userID string) ([]string, error) {
	url := fmt.Sprintf("%s/api/v1/users/%s/roles", c.baseURL, userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roles: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("role directory returned status %d", resp.StatusCode)
	}

	var body rolesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode roles response: %w", err)
	}
	return body.Roles, nil
}

// StaticRoleDirectory serves a fixed role map. Used in development and tests
// when no directory service is configured.
type StaticRoleDirectory struct {
	roles map[string][]string
}

// NewStaticRoleDirectory creates a directory from a fixed user-to-roles map.
func NewStaticRoleDirectory(roles map[string][]string) *StaticRoleDirectory {
	return &StaticRoleDirectory{roles: roles}
}

// GetRoles returns the configured roles for the user.
func (d *StaticRoleDirectory) GetRoles(_ context.Context, userID string) ([]string, error) {
	return d.roles[userID], nil
}
