package models

import "time"

// Setting keys the dashboard persists. Secret values are stored encrypted.
const (
	SettingComplianceBaseURL      = "compliance_base_url"
	SettingComplianceTenantID     = "compliance_tenant_id"
	SettingComplianceClientID     = "compliance_client_id"
	SettingComplianceClientSecret = "compliance_client_secret"
	SettingComplianceScope        = "compliance_scope"
)

// SecretSettingKeys lists the keys whose values must never be stored or
// rendered in the clear.
var SecretSettingKeys = []string{
	SettingComplianceClientSecret,
}

// IsSecretSetting reports whether the key's value is stored encrypted.
func IsSecretSetting(key string) bool {
	for _, k := range SecretSettingKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Setting is one persisted dashboard setting.
type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Encrypted bool      `json:"encrypted"`
	UpdatedAt time.Time `json:"updated_at"`
}
