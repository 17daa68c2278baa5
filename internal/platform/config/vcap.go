package config

import (
	"encoding/json"
	"strings"

	dErrors "cloudgate/pkg/domain-errors"
)

const (
	vcapServicesVar    = "VCAP_SERVICES"
	vcapApplicationVar = "VCAP_APPLICATION"
)

// Service labels that carry provider credentials, in lookup order.
var vcapServiceNames = []string{"AppID", "AdvancedMobileAccess"}

type vcapCredentials struct {
	TenantID       string `json:"tenantId"`
	ClientID       string `json:"clientId"`
	Secret         string `json:"secret"`
	OAuthServerURL string `json:"oauthServerUrl"`
	ManagementURL  string `json:"managementUrl"`
}

type vcapService struct {
	Credentials vcapCredentials `json:"credentials"`
}

type vcapApplication struct {
	ApplicationURIs []string `json:"application_uris"`
}

// applyVCAP fills provider settings left empty by the environment from the
// Cloud Foundry bindings. Explicit settings always win.
func applyVCAP(cfg *Config, servicesJSON, applicationJSON string) error {
	if strings.TrimSpace(servicesJSON) != "" {
		var services map[string][]vcapService
		if err := json.Unmarshal([]byte(servicesJSON), &services); err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, "parse "+vcapServicesVar)
		}
		for _, name := range vcapServiceNames {
			bound := services[name]
			if len(bound) == 0 {
				continue
			}
			creds := bound[0].Credentials
			fill(&cfg.Provider.TenantID, creds.TenantID)
			fill(&cfg.Provider.ClientID, creds.ClientID)
			fill(&cfg.Provider.Secret, creds.Secret)
			fill(&cfg.Provider.OAuthServerURL, creds.OAuthServerURL)
			fill(&cfg.Management.URL, creds.ManagementURL)
			break
		}
	}

	if cfg.Provider.RedirectURI == "" && strings.TrimSpace(applicationJSON) != "" {
		var app vcapApplication
		if err := json.Unmarshal([]byte(applicationJSON), &app); err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, "parse "+vcapApplicationVar)
		}
		if len(app.ApplicationURIs) > 0 && app.ApplicationURIs[0] != "" {
			cfg.Provider.RedirectURI = "https://" + app.ApplicationURIs[0] + DefaultCallbackPath
		}
	}
	return nil
}

func fill(dst *string, value string) {
	if *dst == "" {
		*dst = value
	}
}
