package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Mode is how the installation runs.
type Mode string

const (
	ModeHosted    Mode = "hosted"
	ModeSelfHost  Mode = "self_host"
	ModeLocalOnly Mode = "local_only"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeHosted, ModeSelfHost, ModeLocalOnly:
		return true
	}
	return false
}

// Feature names derived from entitlement flags.
const (
	FeatureHostedSync     = "hosted_sync"
	FeatureCloudBackup    = "cloud_backup"
	FeatureSelfHostServer = "self_host_server"
	featureUpdatePack     = "update_pack_"
)

// UpdatePackFeature names the feature granted by an update pack year.
func UpdatePackFeature(year int) string {
	return featureUpdatePack + strconv.Itoa(year)
}

// Entitlement is the signed grant for this installation. Field order is the
// wire order and also the canonical signing order.
type Entitlement struct {
	AppID           string     `json:"appId"`
	Mode            Mode       `json:"mode"`
	HostedActive    bool       `json:"hostedActive"`
	SelfHostLicense bool       `json:"selfHostLicense"`
	UpdatePackYear  *int       `json:"updatePackYear,omitempty"`
	Features        []string   `json:"features"`
	IssuedAt        time.Time  `json:"issuedAt"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
	Signature       string     `json:"signature,omitempty"`
}

// Canonical returns a copy normalised for signing: no signature, features
// sorted and de-duplicated, timestamps in UTC at second precision.
func (e Entitlement) Canonical() Entitlement {
	c := e
	c.Signature = ""
	c.Features = normalizeFeatures(e.Features)
	c.IssuedAt = e.IssuedAt.UTC().Truncate(time.Second)
	if e.ExpiresAt != nil {
		exp := e.ExpiresAt.UTC().Truncate(time.Second)
		c.ExpiresAt = &exp
	}
	if e.UpdatePackYear != nil {
		year := *e.UpdatePackYear
		c.UpdatePackYear = &year
	}
	return c
}

// Validate checks field-level constraints.
func (e Entitlement) Validate() error {
	if strings.TrimSpace(e.AppID) == "" {
		return &ValidationError{Field: "appId", Message: "appId is required"}
	}
	if !e.Mode.Valid() {
		return &ValidationError{Field: "mode", Message: fmt.Sprintf("unsupported mode: %q", e.Mode)}
	}
	if e.UpdatePackYear != nil && (*e.UpdatePackYear < 2000 || *e.UpdatePackYear > 2100) {
		return &ValidationError{Field: "updatePackYear", Message: "updatePackYear must be between 2000 and 2100"}
	}
	for _, f := range e.Features {
		if strings.TrimSpace(f) == "" {
			return &ValidationError{Field: "features", Message: "features must not contain empty names"}
		}
	}
	if e.IssuedAt.IsZero() {
		return &ValidationError{Field: "issuedAt", Message: "issuedAt is required"}
	}
	if e.ExpiresAt != nil && !e.ExpiresAt.After(e.IssuedAt) {
		return &ValidationError{Field: "expiresAt", Message: "expiresAt must be after issuedAt"}
	}
	return nil
}

// DerivedFeatures computes the feature set implied by the flags.
func (e Entitlement) DerivedFeatures() []string {
	var features []string
	if e.HostedActive {
		features = append(features, FeatureHostedSync, FeatureCloudBackup)
	}
	if e.SelfHostLicense {
		features = append(features, FeatureSelfHostServer)
	}
	if e.UpdatePackYear != nil {
		features = append(features, UpdatePackFeature(*e.UpdatePackYear))
	}
	return normalizeFeatures(features)
}

// HasFeature reports whether the entitlement grants feature.
func (e Entitlement) HasFeature(feature string) bool {
	for _, f := range e.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// IsExpired reports whether the entitlement has lapsed at now.
func (e Entitlement) IsExpired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}

func normalizeFeatures(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, f := range in {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
