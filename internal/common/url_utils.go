package common

// URL utilities for target domain validation.

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ternarybob/arbor"
)

// ValidateTargetDomain validates a target's base domain and detects test URL patterns.
// Returns: (isValid bool, isTestURL bool, warnings []string, err error)
func ValidateTargetDomain(domain string, logger arbor.ILogger) (bool, bool, []string, error) {
	warnings := []string{}

	candidate := domain
	if !strings.Contains(candidate, "://") {
		candidate = "https://" + candidate
	}

	parsedURL, err := url.Parse(candidate)
	if err != nil {
		return false, false, warnings, fmt.Errorf("invalid domain format: %w", err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return false, false, warnings, fmt.Errorf("invalid domain scheme: %s (expected http or https)", parsedURL.Scheme)
	}

	if parsedURL.Host == "" {
		return false, false, warnings, fmt.Errorf("domain host is empty")
	}

	isTestURL := false
	host := strings.ToLower(parsedURL.Host)

	if strings.HasPrefix(host, "localhost") {
		isTestURL = true
		warnings = append(warnings, fmt.Sprintf("Test domain detected: %s uses localhost", domain))
	}

	if strings.HasPrefix(host, "127.0.0.1") {
		isTestURL = true
		warnings = append(warnings, fmt.Sprintf("Test domain detected: %s uses 127.0.0.1", domain))
	}

	if strings.HasPrefix(host, "0.0.0.0") {
		isTestURL = true
		warnings = append(warnings, fmt.Sprintf("Test domain detected: %s uses 0.0.0.0", domain))
	}

	if strings.HasPrefix(host, "[::1]") {
		isTestURL = true
		warnings = append(warnings, fmt.Sprintf("Test domain detected: %s uses IPv6 localhost [::1]", domain))
	}

	if isTestURL {
		logger.Debug().
			Str("domain", domain).
			Str("is_test_url", "true").
			Strs("warnings", warnings).
			Msg("Target domain validation: test domain detected")
	} else {
		logger.Debug().
			Str("domain", domain).
			Str("is_test_url", "false").
			Msg("Target domain validation: production domain")
	}

	return true, isTestURL, warnings, nil
}
