// Package sap implements a client for the SAP Integration Suite OData API.
// It covers the operations the reviewer needs: OAuth 2.0 client credentials
// authentication against the tenant's token service, integration package and
// designtime artifact discovery, and artifact content download.
//
// Authentication follows the client credentials flow used for
// machine-to-machine access to SAP BTP services: the client ID and secret are
// exchanged for a bearer token at "{auth-url}/oauth/token", and the token is
// cached until shortly before expiration.
package sap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"cireview.evalgo.org/common"
	"cireview.evalgo.org/iflow"
)

// Credentials holds the connection settings for one Integration Suite tenant.
type Credentials struct {
	// BaseURL is the tenant API base URL (e.g. "https://tenant.it-cpi.cfapps.eu10.hana.ondemand.com")
	BaseURL string `json:"base_url"`

	// AuthURL is the OAuth token service base URL (e.g. "https://tenant.authentication.eu10.hana.ondemand.com")
	AuthURL string `json:"auth_url"`

	// ClientID is the OAuth 2.0 client identifier
	ClientID string `json:"client_id"`

	// ClientSecret is the OAuth 2.0 client secret
	ClientSecret string `json:"client_secret"`
}

// Package is one integration package as returned by the OData API.
type Package struct {
	ID          string `json:"Id"`
	Name        string `json:"Name"`
	Description string `json:"Description"`
	Version     string `json:"Version"`
	Mode        string `json:"Mode"`
}

// Artifact is one designtime artifact belonging to a package.
type Artifact struct {
	ID          string `json:"Id"`
	Name        string `json:"Name"`
	Version     string `json:"Version"`
	PackageID   string `json:"PackageId"`
	Description string `json:"Description"`
}

// tokenResponse is the OAuth 2.0 token response from the token service.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// odataList is the generic OData v2 result envelope.
type odataList struct {
	D struct {
		Results []json.RawMessage `json:"results"`
	} `json:"d"`
}

// Connection is an authenticated client for one tenant. It caches the access
// token across calls and refreshes it shortly before expiry. Safe for
// concurrent use.
type Connection struct {
	creds Credentials
	http  *http.Client
	log   *logrus.Logger

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// tokenExpirySlack is subtracted from the advertised token lifetime so a
// token is never used right at its expiration boundary.
const tokenExpirySlack = 60 * time.Second

// NewConnection validates the credentials and returns an unauthenticated
// connection; the first API call triggers token acquisition.
func NewConnection(creds Credentials, log *logrus.Logger) (*Connection, error) {
	if creds.BaseURL == "" || creds.AuthURL == "" {
		return nil, fmt.Errorf("sap: base URL and auth URL are required")
	}
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("sap: client ID and client secret are required")
	}
	if log == nil {
		log = common.Logger
	}

	creds.BaseURL = strings.TrimRight(creds.BaseURL, "/")
	creds.AuthURL = strings.TrimRight(creds.AuthURL, "/")

	log.WithFields(logrus.Fields{
		"base_url":  creds.BaseURL,
		"client_id": common.MaskSecret(creds.ClientID),
	}).Info("SAP Integration Suite connection configured")

	return &Connection{
		creds: creds,
		http:  &http.Client{Timeout: 120 * time.Second},
		log:   log,
	}, nil
}

// Token returns a valid access token, fetching a new one when the cached
// token is missing or about to expire.
func (c *Connection) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.expiry) {
		return c.token, nil
	}

	data := url.Values{}
	data.Set("grant_type", "client_credentials")

	tokenURL := c.creds.AuthURL + "/oauth/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.creds.ClientID, c.creds.ClientSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned an empty access token")
	}

	c.token = tok.AccessToken
	c.expiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - tokenExpirySlack)
	c.log.WithField("expires_in", tok.ExpiresIn).Debug("obtained new access token")

	return c.token, nil
}

// get performs an authenticated GET against an absolute URL and returns the
// response. The caller owns the body.
func (c *Connection) get(ctx context.Context, rawURL string) (*http.Response, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	return c.http.Do(req)
}

// getJSONList fetches an OData collection URL and returns the raw result rows.
func (c *Connection) getJSONList(ctx context.Context, rawURL string) ([]json.RawMessage, error) {
	resp, err := c.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("request to %s returned status %d: %s", rawURL, resp.StatusCode, string(body))
	}

	var list odataList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to parse OData response: %w", err)
	}
	return list.D.Results, nil
}

// SearchPackages lists the tenant's integration packages, filtered
// client-side by a case-insensitive substring match on ID and name. An empty
// query or "*" returns all packages.
func (c *Connection) SearchPackages(ctx context.Context, query string) ([]Package, error) {
	rows, err := c.getJSONList(ctx, c.creds.BaseURL+"/api/v1/IntegrationPackages")
	if err != nil {
		return nil, fmt.Errorf("failed to list integration packages: %w", err)
	}

	needle := strings.ToLower(query)
	if needle == "*" {
		needle = ""
	}
	var packages []Package
	for _, row := range rows {
		var pkg Package
		if err := json.Unmarshal(row, &pkg); err != nil {
			c.log.WithError(err).Warn("skipping unparseable package entry")
			continue
		}
		if needle == "" ||
			strings.Contains(strings.ToLower(pkg.ID), needle) ||
			strings.Contains(strings.ToLower(pkg.Name), needle) {
			packages = append(packages, pkg)
		}
	}

	c.log.WithFields(logrus.Fields{"query": query, "matches": len(packages)}).Info("package search complete")
	return packages, nil
}

// odataEntity is the OData v2 single-entity envelope.
type odataEntity struct {
	D json.RawMessage `json:"d"`
}

// PackageDetails fetches one integration package by ID together with its
// designtime artifacts. Some tenants reject the key-predicate entity URL, so
// a $filter query serves as fallback.
func (c *Connection) PackageDetails(ctx context.Context, packageID string) (*Package, []Artifact, error) {
	pkg, err := c.fetchPackage(ctx, packageID)
	if err != nil {
		return nil, nil, err
	}
	artifacts, err := c.PackageArtifacts(ctx, packageID)
	if err != nil {
		return nil, nil, err
	}
	return pkg, artifacts, nil
}

func (c *Connection) fetchPackage(ctx context.Context, packageID string) (*Package, error) {
	entityURL := fmt.Sprintf("%s/api/v1/IntegrationPackages('%s')", c.creds.BaseURL, url.PathEscape(packageID))

	resp, err := c.get(ctx, entityURL)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusOK {
		defer resp.Body.Close()
		var envelope odataEntity
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return nil, fmt.Errorf("failed to parse package response: %w", err)
		}
		var pkg Package
		if err := json.Unmarshal(envelope.D, &pkg); err != nil {
			return nil, fmt.Errorf("failed to parse package entry: %w", err)
		}
		return &pkg, nil
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	c.log.WithField("status", resp.StatusCode).Debug("entity lookup rejected, falling back to $filter")

	filterURL := c.creds.BaseURL + "/api/v1/IntegrationPackages?$filter=" +
		url.QueryEscape(fmt.Sprintf("Id eq '%s'", packageID))
	rows, err := c.getJSONList(ctx, filterURL)
	if err != nil {
		return nil, fmt.Errorf("failed to look up package %s: %w", packageID, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("package %s not found", packageID)
	}
	var pkg Package
	if err := json.Unmarshal(rows[0], &pkg); err != nil {
		return nil, fmt.Errorf("failed to parse package entry: %w", err)
	}
	return &pkg, nil
}

// PackageArtifacts lists the designtime artifacts of one package.
func (c *Connection) PackageArtifacts(ctx context.Context, packageID string) ([]Artifact, error) {
	listURL := fmt.Sprintf("%s/api/v1/IntegrationPackages('%s')/IntegrationDesigntimeArtifacts",
		c.creds.BaseURL, url.PathEscape(packageID))

	rows, err := c.getJSONList(ctx, listURL)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts of package %s: %w", packageID, err)
	}

	var artifacts []Artifact
	for _, row := range rows {
		var art Artifact
		if err := json.Unmarshal(row, &art); err != nil {
			c.log.WithError(err).Warn("skipping unparseable artifact entry")
			continue
		}
		if art.PackageID == "" {
			art.PackageID = packageID
		}
		artifacts = append(artifacts, art)
	}
	return artifacts, nil
}

// downloadURLs returns the candidate content URLs for an artifact, most
// specific first. Different tenant and artifact versions expose the content
// under different collections, so download tries them in order.
func (c *Connection) downloadURLs(artifactID, version string) []string {
	base := c.creds.BaseURL
	id := url.PathEscape(artifactID)

	var urls []string
	if version != "" && version != "active" {
		urls = append(urls, fmt.Sprintf("%s/api/v1/IntegrationDesigntimeArtifacts(Id='%s',Version='%s')/$value", base, id, url.PathEscape(version)))
	}
	urls = append(urls,
		fmt.Sprintf("%s/api/v1/IntegrationDesigntimeArtifacts(Id='%s',Version='active')/$value", base, id),
		fmt.Sprintf("%s/api/v1/ValueMappingDesigntimeArtifacts(Id='%s',Version='active')/$value", base, id),
		fmt.Sprintf("%s/api/v1/IntegrationRuntimeArtifacts('%s')/$value", base, id),
	)
	return urls
}

// DownloadArtifact fetches the artifact content into destDir and returns the
// written file path. Content arrives as a ZIP bundle for most artifacts, but
// some endpoints deliver bare XML; the saved file gets the extension matching
// what was actually received. Files are named
// "<artifactID>____<timestamp>.<ext>" so the artifact identity survives in
// the filename.
func (c *Connection) DownloadArtifact(ctx context.Context, artifactID, version, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	var lastErr error
	for _, candidate := range c.downloadURLs(artifactID, version) {
		path, err := c.downloadTo(ctx, candidate, artifactID, destDir)
		if err == nil {
			return path, nil
		}
		lastErr = err
		c.log.WithError(err).WithField("url", candidate).Debug("download candidate failed, trying next")
	}
	return "", fmt.Errorf("all download attempts for artifact %s failed: %w", artifactID, lastErr)
}

func (c *Connection) downloadTo(ctx context.Context, rawURL, artifactID, destDir string) (string, error) {
	resp, err := c.get(ctx, rawURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("content endpoint returned status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(destDir, "download_*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	written, err := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if err != nil || closeErr != nil {
		os.Remove(tmpPath)
		if err == nil {
			err = closeErr
		}
		return "", fmt.Errorf("failed to write artifact content: %w", err)
	}
	if written == 0 {
		os.Remove(tmpPath)
		return "", fmt.Errorf("content endpoint returned an empty body")
	}

	ext := ".zip"
	if header, err := readFileHeader(tmpPath); err == nil && iflow.SniffKind(header) == iflow.KindXML {
		ext = ".xml"
	}

	finalPath := filepath.Join(destDir, fmt.Sprintf("%s____%s%s", artifactID, time.Now().Format("20060102150405"), ext))
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to finalize download: %w", err)
	}

	c.log.WithFields(logrus.Fields{
		"artifact": artifactID,
		"path":     finalPath,
		"bytes":    written,
	}).Info("artifact downloaded")
	return finalPath, nil
}

func readFileHeader(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, 1000)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}
