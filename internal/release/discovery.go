package release

import "time"

// UnknownVersion is reported when a unit's version cannot be determined.
const UnknownVersion = "Unknown"

// UpdatePolicy decides whether a unit is updated without an operator.
type UpdatePolicy string

const (
	// PolicyPassive units are only updated on an explicit install command.
	PolicyPassive UpdatePolicy = "passive"

	// PolicyAuto units are installed by the scheduler when an update is available.
	PolicyAuto UpdatePolicy = "auto"
)

// Status mirrors whether the unit is running.
type Status string

const (
	StatusOn  Status = "on"
	StatusOff Status = "off"
)

// Discovery is one inspected unit at one point in time.
type Discovery struct {
	// Name identifies the unit within its provider.
	Name string

	// SourceType is the owning provider's type, e.g. "docker".
	SourceType string

	// Session is the token of the scan that produced this Discovery.
	Session string

	CurrentVersion string
	LatestVersion  string

	// CanUpdate is true when configuration permits at least one update path
	// and the unit offers one.
	CanUpdate    bool
	UpdatePolicy UpdatePolicy

	// UpdateLastAttempt is when an update of this unit last started, nil if
	// never. It survives rescans of the same unit.
	UpdateLastAttempt *time.Time

	Status           Status
	TitleTemplate    string
	EntityPictureURL string
	ReleaseURL       Optional[string]
	ReleaseSummary   Optional[string]
	DeviceIcon       string

	// Custom carries provider-specific details. Only the owning provider
	// interprets it.
	Custom any
}

// UpdateAvailable reports whether the latest version differs from the
// installed one.
func (d *Discovery) UpdateAvailable() bool {
	return d.LatestVersion != d.CurrentVersion
}

// Clone returns a shallow copy of d. Providers use it to derive a new
// instance instead of mutating one that consumers may hold.
func (d *Discovery) Clone() *Discovery {
	c := *d
	if d.UpdateLastAttempt != nil {
		t := *d.UpdateLastAttempt
		c.UpdateLastAttempt = &t
	}
	return &c
}

// WithLastAttempt returns a copy of d with UpdateLastAttempt set to at.
func (d *Discovery) WithLastAttempt(at time.Time) *Discovery {
	c := d.Clone()
	c.UpdateLastAttempt = &at
	return c
}
