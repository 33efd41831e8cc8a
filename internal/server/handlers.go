package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/xiyo/replica-builder/internal/logger"
	"github.com/xiyo/replica-builder/internal/metrics"
	"github.com/xiyo/replica-builder/internal/template"
)

// subdomainPattern matches a single DNS label: lowercase alphanumerics and
// hyphens, no leading or trailing hyphen, at most 63 characters.
var subdomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// buildRequest carries the site configuration submitted by the front-end.
// Values are strings or booleans; anything else is rejected.
type buildRequest map[string]interface{}

type buildResponse struct {
	Success   bool   `json:"success"`
	DeployURL string `json:"deployUrl,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
}

// respondWithError sends a JSON error response with the given status code
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithJSON sends a JSON response with the given status code
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		logger.WithError(err).Error("Failed to marshal response payload")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// respondWithFieldError reports a validation failure for a named form field.
func respondWithFieldError(w http.ResponseWriter, field, message string) {
	respondWithJSON(w, http.StatusBadRequest, buildResponse{
		Success: false,
		Error:   field,
		Message: message,
	})
}

// parseBuildRequest reads the site configuration from either a JSON body or
// an HTML form submission.
func parseBuildRequest(r *http.Request) (buildRequest, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var req buildRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, fmt.Errorf("invalid JSON body: %w", err)
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("invalid form body: %w", err)
	}
	req := make(buildRequest, len(r.PostForm))
	for key, values := range r.PostForm {
		if len(values) == 0 {
			continue
		}
		// Checkbox-style fields arrive as the strings "true"/"false"
		switch values[0] {
		case "true":
			req[key] = true
		case "false":
			req[key] = false
		default:
			req[key] = values[0]
		}
	}
	return req, nil
}

// stringField returns the named field as a trimmed string, or "" when the
// field is absent or not a string.
func (b buildRequest) stringField(key string) string {
	v, ok := b[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// generateSubdomain derives a short random site label. The first segment of
// a UUID is unique enough for this purpose and keeps URLs readable.
func generateSubdomain() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// buildHandler validates the submitted site configuration and dispatches the
// provisioning workflow. The response carries the eventual deploy URL; the
// client follows up on the workflow-status endpoint to watch the build.
func (s *Server) buildHandler(w http.ResponseWriter, r *http.Request) {
	req, err := parseBuildRequest(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.stringField("title") == "" {
		respondWithFieldError(w, "title", "Site title is required.")
		return
	}
	if req.stringField("topic") == "" {
		respondWithFieldError(w, "topic", "Site topic is required.")
		return
	}

	subdomain := req.stringField("subdomain")
	if subdomain == "" {
		subdomain = generateSubdomain()
	} else if !subdomainPattern.MatchString(subdomain) {
		respondWithFieldError(w, "subdomain", "Subdomain may only contain lowercase letters, numbers and hyphens.")
		return
	}
	req["subdomain"] = subdomain

	for key, value := range req {
		switch value.(type) {
		case string, bool:
		default:
			respondWithFieldError(w, key, "Field must be a string or boolean.")
			return
		}
	}

	configJSON, err := json.Marshal(req)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to encode site configuration")
		return
	}

	metrics.DispatchesTotal.Inc()
	result := s.gh.Dispatch(r.Context(), map[string]string{
		"config": string(configJSON),
	})
	if !result.Success {
		metrics.DispatchFailuresTotal.Inc()
		status := result.Status
		if status == 0 {
			status = http.StatusBadGateway
		}
		respondWithJSON(w, status, buildResponse{
			Success: false,
			Error:   "api",
			Message: result.Error,
		})
		return
	}

	respondWithJSON(w, http.StatusOK, buildResponse{
		Success:   true,
		DeployURL: fmt.Sprintf("https://%s.%s", subdomain, s.cfg.BaseDomain),
	})
}

// checkSubdomainHandler reports whether a subdomain is free under the base
// domain. It requires Cloudflare credentials; without them the endpoint is
// unavailable.
func (s *Server) checkSubdomainHandler(w http.ResponseWriter, r *http.Request) {
	subdomain := r.PathValue("subdomain")
	if !subdomainPattern.MatchString(subdomain) {
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"available": false,
			"subdomain": subdomain,
			"error":     "Subdomain may only contain lowercase letters, numbers and hyphens.",
		})
		return
	}

	if s.dns == nil {
		respondWithError(w, http.StatusServiceUnavailable, "subdomain checks are not configured")
		return
	}

	exists, err := s.dns.SubdomainExists(r.Context(), subdomain, s.cfg.BaseDomain)
	if err != nil {
		logger.WithError(err).Error("Subdomain lookup failed")
		respondWithError(w, http.StatusInternalServerError, "failed to check subdomain availability")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"available":  !exists,
		"subdomain":  subdomain,
		"fullDomain": fmt.Sprintf("%s.%s", subdomain, s.cfg.BaseDomain),
	})
}

// sitesHandler lists deployed sites. Site repositories are the source of
// truth; when listing them fails the DNS records are used as a fallback view.
func (s *Server) sitesHandler(w http.ResponseWriter, r *http.Request) {
	sites, err := s.gh.ListDeployedSites(r.Context(), s.cfg.BaseDomain)
	if err == nil {
		respondWithJSON(w, http.StatusOK, map[string]interface{}{"sites": sites})
		return
	}
	logger.WithError(err).Error("Failed to list site repositories")

	if s.dns == nil {
		respondWithError(w, http.StatusBadGateway, "failed to list deployed sites")
		return
	}

	dnsSites, dnsErr := s.dns.ListSites(r.Context(), s.cfg.BaseDomain)
	if dnsErr != nil {
		logger.WithError(dnsErr).Error("DNS fallback listing failed")
		respondWithError(w, http.StatusBadGateway, "failed to list deployed sites")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"sites": dnsSites})
}

// templatesHandler returns the site template catalog.
func (s *Server) templatesHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"templates": template.All()})
}

// templateSchemaHandler returns the configuration schema for one template.
func (s *Server) templateSchemaHandler(w http.ResponseWriter, r *http.Request) {
	tmpl := template.ByID(r.PathValue("id"))
	if tmpl == nil {
		respondWithError(w, http.StatusNotFound, "unknown template")
		return
	}

	fields, err := template.FetchSchema(r.Context(), tmpl)
	if err != nil {
		logger.WithError(err).Error("Failed to fetch template schema")
		respondWithError(w, http.StatusBadGateway, "failed to fetch template schema")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"template": tmpl,
		"fields":   fields,
	})
}
