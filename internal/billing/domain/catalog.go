package domain

// Built-in SKUs.
const (
	SKUHostedMonthly    = "mylife_hosted_monthly_v1"
	SKUHostedYearly     = "mylife_hosted_yearly_v1"
	SKUSelfHostLifetime = "mylife_self_host_lifetime_v1"
	SKUUpdatePack2026   = "mylife_update_pack_2026_v1"
)

// ModeDefault is the mode a SKU sets. ModeUnchanged keeps the current mode.
type ModeDefault string

const ModeUnchanged ModeDefault = "unchanged"

// Valid reports whether d is a mode or ModeUnchanged.
func (d ModeDefault) Valid() bool {
	return d == ModeUnchanged || Mode(d).Valid()
}

// SKUDefaults is the entitlement template a SKU grants.
type SKUDefaults struct {
	HostedActive    bool        `yaml:"hostedActive"`
	SelfHostLicense bool        `yaml:"selfHostLicense"`
	ModeDefault     ModeDefault `yaml:"modeDefault"`
	UpdatePackYear  *int        `yaml:"updatePackYear"`
}

// Catalog maps SKUs to templates. It is read-only once built.
type Catalog map[string]SKUDefaults

// Lookup returns the template for sku.
func (c Catalog) Lookup(sku string) (SKUDefaults, bool) {
	d, ok := c[sku]
	return d, ok
}

// DefaultCatalog returns the built-in SKU table.
func DefaultCatalog() Catalog {
	year := 2026
	return Catalog{
		SKUHostedMonthly:    {HostedActive: true, ModeDefault: ModeDefault(ModeHosted)},
		SKUHostedYearly:     {HostedActive: true, ModeDefault: ModeDefault(ModeHosted)},
		SKUSelfHostLifetime: {SelfHostLicense: true, ModeDefault: ModeDefault(ModeSelfHost)},
		SKUUpdatePack2026:   {ModeDefault: ModeUnchanged, UpdatePackYear: &year},
	}
}
