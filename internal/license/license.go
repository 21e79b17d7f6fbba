// Package license looks up the license tier for this machine from the
// Supabase REST API and records activity events. Every failure degrades to an
// active free tier so a broken license backend never blocks the operator.
package license

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"todosync/internal/utils"
)

// Tier is a license tier.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// Info describes the license of this machine.
type Info struct {
	Tier      Tier       `json:"tier"`
	IsActive  bool       `json:"is_active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// FreeInfo is the fallback license.
func FreeInfo() Info {
	return Info{Tier: TierFree, IsActive: true}
}

// IsFree reports whether the quota of the free tier applies.
func (i Info) IsFree() bool {
	return i.Tier == TierFree
}

const (
	licensesTable = "licenses"
	activityTable = "activity_log"
	// machineColumn is the key column of the remote schema.
	machineColumn = "vs_code_machine_id"

	defaultTimeout = 10 * time.Second
)

// Config holds the Supabase connection settings.
type Config struct {
	URL        string
	AnonKey    string
	MachineID  string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Service talks to the Supabase PostgREST endpoint.
type Service struct {
	baseURL   string
	anonKey   string
	machineID string
	client    *http.Client
	now       func() time.Time
}

// New creates a license service. Without a URL or key the service is
// unconfigured and always reports the free tier.
func New(cfg Config) *Service {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Service{
		baseURL:   strings.TrimRight(cfg.URL, "/"),
		anonKey:   cfg.AnonKey,
		machineID: cfg.MachineID,
		client:    client,
		now:       time.Now,
	}
}

// Configured reports whether a license backend is set up.
func (s *Service) Configured() bool {
	return s.baseURL != "" && s.anonKey != "" && s.machineID != ""
}

type licenseRow struct {
	Tier      Tier       `json:"license_tier"`
	IsActive  bool       `json:"is_active"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// CheckLicense returns the license of this machine. A machine without a
// license row gets a free row created for it. Expired paid licenses report the
// free tier as inactive.
func (s *Service) CheckLicense(ctx context.Context) Info {
	if !s.Configured() {
		return FreeInfo()
	}

	q := url.Values{}
	q.Set("select", "license_tier,is_active,expires_at")
	q.Set(machineColumn, "eq."+s.machineID)
	q.Set("limit", "1")

	var rows []licenseRow
	if err := s.do(ctx, http.MethodGet, licensesTable, q, nil, &rows); err != nil {
		utils.Warnf("License check failed: %v", err)
		return FreeInfo()
	}

	if len(rows) == 0 {
		s.createDefaultLicense(ctx)
		return FreeInfo()
	}

	row := rows[0]
	if row.ExpiresAt != nil && row.ExpiresAt.Before(s.now()) && row.Tier != TierFree {
		return Info{Tier: TierFree, IsActive: false, ExpiresAt: row.ExpiresAt}
	}
	if row.Tier == "" {
		row.Tier = TierFree
	}
	return Info{Tier: row.Tier, IsActive: row.IsActive, ExpiresAt: row.ExpiresAt}
}

func (s *Service) createDefaultLicense(ctx context.Context) {
	row := map[string]interface{}{
		machineColumn:  s.machineID,
		"license_tier": TierFree,
		"is_active":    true,
	}
	if err := s.do(ctx, http.MethodPost, licensesTable, nil, row, nil); err != nil {
		utils.Warnf("Failed to create default license: %v", err)
	}
}

// LogActivity records an activity event. Failures are logged, never returned.
func (s *Service) LogActivity(ctx context.Context, action string, metadata map[string]string) {
	if !s.Configured() {
		return
	}
	if metadata == nil {
		metadata = map[string]string{}
	}
	row := map[string]interface{}{
		machineColumn: s.machineID,
		"action":      action,
		"metadata":    metadata,
	}
	if err := s.do(ctx, http.MethodPost, activityTable, nil, row, nil); err != nil {
		utils.Debugf("Activity logging failed: %v", err)
	}
}

func (s *Service) do(ctx context.Context, method, table string, query url.Values, body, out interface{}) error {
	endpoint := s.baseURL + "/rest/v1/" + table
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", s.anonKey)
	req.Header.Set("Authorization", "Bearer "+s.anonKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "return=minimal")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, table, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// LoadMachineID returns the machine id stored at path, creating a new random
// id on first use.
func LoadMachineID(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read machine id: %w", err)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0600); err != nil {
		return "", fmt.Errorf("failed to write machine id: %w", err)
	}
	return id, nil
}
