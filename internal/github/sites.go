package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"sync"
)

// templateRepoPattern matches the repositories the provisioning workflow
// creates, e.g. replica-template-01-20250901123000
var templateRepoPattern = regexp.MustCompile(`^replica-template-(\d{2})-\d{14}$`)

// subdomainVariable is the Actions variable each provisioned repo carries
const subdomainVariable = "SITE_SUBDOMAIN"

// ListDeployedSites discovers provisioned sites by listing the owner's
// repositories, filtering for template repos, and reading each repo's
// SITE_SUBDOMAIN Actions variable. Per-repo lookups run concurrently and a
// failing repo is skipped rather than failing the whole listing. Results
// are sorted newest first.
func (c *Client) ListDeployedSites(ctx context.Context, baseDomain string) ([]DeployedSite, error) {
	path := fmt.Sprintf("/users/%s/repos?sort=created&per_page=100", c.cfg.Owner)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("repository listing failed with status %d", resp.StatusCode)
	}

	var repos []Repo
	if err := json.NewDecoder(resp.Body).Decode(&repos); err != nil {
		return nil, fmt.Errorf("failed to decode repository listing: %w", err)
	}

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		sites []DeployedSite
	)

	for _, repo := range repos {
		match := templateRepoPattern.FindStringSubmatch(repo.Name)
		if match == nil {
			continue
		}

		wg.Add(1)
		go func(repo Repo, templateNum string) {
			defer wg.Done()

			subdomain := c.siteSubdomain(ctx, repo.Name)
			if subdomain == "" {
				return
			}

			mu.Lock()
			sites = append(sites, DeployedSite{
				Subdomain: subdomain,
				URL:       fmt.Sprintf("https://%s.%s", subdomain, baseDomain),
				RepoName:  repo.Name,
				RepoURL:   repo.HTMLURL,
				CreatedAt: repo.CreatedAt,
				Template:  "template-" + templateNum,
			})
			mu.Unlock()
		}(repo, match[1])
	}
	wg.Wait()

	sort.Slice(sites, func(i, j int) bool {
		return sites[i].CreatedAt.After(sites[j].CreatedAt)
	})
	return sites, nil
}

// siteSubdomain reads the SITE_SUBDOMAIN Actions variable of one repo,
// returning empty when the repo has none or the lookup fails
func (c *Client) siteSubdomain(ctx context.Context, repoName string) string {
	path := fmt.Sprintf("/repos/%s/%s/actions/variables", c.cfg.Owner, repoName)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return ""
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithError(err).WithField("repo", repoName).Debug("Variables lookup failed")
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var data variablesResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return ""
	}

	for _, v := range data.Variables {
		if v.Name == subdomainVariable {
			return v.Value
		}
	}
	return ""
}
