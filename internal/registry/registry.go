package registry

import (
	"encoding/json"
	"fmt"
)

// StatusActive is the only key status that permits verification.
// Any other value is treated as inactive.
const StatusActive = "active"

// LicenseKey represents one issued product key in the key registry.
type LicenseKey struct {
	Key    string `json:"key"`
	Status string `json:"status"`
}

// IsActive reports whether the key may be used for verification.
func (k *LicenseKey) IsActive() bool {
	return k.Status == StatusActive
}

// ActivationRecord binds a license key to a user and a single device.
// Timestamps are RFC 3339 UTC strings; values already in the store are
// treated as opaque and never reparsed.
type ActivationRecord struct {
	LicenseKey   string `json:"license_key"`
	Owner        string `json:"owner"`
	HWID         string `json:"hwid"`
	RegisteredAt string `json:"registered_at"`
	LastLogin    string `json:"last_login"`
	Legacy       bool   `json:"legacy,omitempty"`
}

// KeyStats holds the derived counters kept alongside the key list.
type KeyStats struct {
	TotalKeys  int `json:"total_keys"`
	ActiveKeys int `json:"active_keys"`
}

// KeyRegistry is the decoded verification_keys document.
type KeyRegistry struct {
	Keys        []LicenseKey `json:"keys"`
	BannedHWIDs []string     `json:"banned_hwids"`
	Stats       KeyStats     `json:"stats"`
}

// UserRegistry is the decoded users document.
type UserRegistry struct {
	Users       []ActivationRecord `json:"users"`
	BannedUsers []string           `json:"banned_users"`
}

// FindKey returns the key entry matching the given key string, or nil.
// Matching is exact; keys are opaque and never normalized.
func (r *KeyRegistry) FindKey(key string) *LicenseKey {
	for i := range r.Keys {
		if r.Keys[i].Key == key {
			return &r.Keys[i]
		}
	}
	return nil
}

// IsHWIDBanned reports whether the device identifier is on the ban list.
func (r *KeyRegistry) IsHWIDBanned(hwid string) bool {
	for _, banned := range r.BannedHWIDs {
		if banned == hwid {
			return true
		}
	}
	return false
}

// AppendKey adds a key to the registry. The caller is responsible for
// recounting stats afterwards.
func (r *KeyRegistry) AppendKey(key LicenseKey) {
	r.Keys = append(r.Keys, key)
}

// RecountStats recomputes both counters from the key list: total is the
// number of keys, active is the number with status "active". Used by the
// legacy enrollment flow.
func (r *KeyRegistry) RecountStats() {
	r.Stats.TotalKeys = len(r.Keys)
	active := 0
	for i := range r.Keys {
		if r.Keys[i].IsActive() {
			active++
		}
	}
	r.Stats.ActiveKeys = active
}

// SyncActiveKeys sets active_keys to the total activation-record count.
// This is the formula the first-use verification flow has always used.
// It differs from RecountStats; downstream consumers read both fields, so
// neither formula may change.
func (r *KeyRegistry) SyncActiveKeys(userCount int) {
	r.Stats.ActiveKeys = userCount
}

// FindActivation returns the record for the (key, owner) pair, or nil.
func (r *UserRegistry) FindActivation(licenseKey, owner string) *ActivationRecord {
	for i := range r.Users {
		if r.Users[i].LicenseKey == licenseKey && r.Users[i].Owner == owner {
			return &r.Users[i]
		}
	}
	return nil
}

// FindOwner returns the first record for the given owner regardless of key,
// or nil. The legacy flow uses this global scan to enforce one record per
// username.
func (r *UserRegistry) FindOwner(owner string) *ActivationRecord {
	for i := range r.Users {
		if r.Users[i].Owner == owner {
			return &r.Users[i]
		}
	}
	return nil
}

// IsUserBanned reports whether the username is on the ban list.
func (r *UserRegistry) IsUserBanned(owner string) bool {
	for _, banned := range r.BannedUsers {
		if banned == owner {
			return true
		}
	}
	return false
}

// AppendUser adds an activation record to the registry.
func (r *UserRegistry) AppendUser(record ActivationRecord) {
	r.Users = append(r.Users, record)
}

// DecodeKeyRegistry parses a verification_keys document.
func DecodeKeyRegistry(data []byte) (*KeyRegistry, error) {
	var reg KeyRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("failed to decode key registry: %w", err)
	}
	return &reg, nil
}

// DecodeUserRegistry parses a users document.
func DecodeUserRegistry(data []byte) (*UserRegistry, error) {
	var reg UserRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("failed to decode user registry: %w", err)
	}
	return &reg, nil
}

// Encode serializes the key registry in the store's indented layout so that
// writes diff cleanly against the previous document revision.
func (r *KeyRegistry) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode key registry: %w", err)
	}
	return data, nil
}

// Encode serializes the user registry in the store's indented layout.
func (r *UserRegistry) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode user registry: %w", err)
	}
	return data, nil
}
