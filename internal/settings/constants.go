package settings

// DB config keys and defaults for settings.
const (
	// SiteNameKey is the DB config key for the console site name.
	SiteNameKey = "SITE_NAME"
	// DefaultSiteName is the fallback console site name.
	DefaultSiteName = "gitledger"
	// RegistrationDisabledKey toggles self-service account registration.
	RegistrationDisabledKey = "REGISTRATION_DISABLED"
	// DefaultRegistrationDisabled keeps registration open by default.
	DefaultRegistrationDisabled = false
	// EventsRetentionDaysKey controls how long event rows are kept.
	EventsRetentionDaysKey = "EVENTS_RETENTION_DAYS"
	// DefaultEventsRetentionDays is the fallback event retention window.
	DefaultEventsRetentionDays = 90
	// WebAuthnRPNameKey overrides the WebAuthn relying party display name.
	WebAuthnRPNameKey = "WEB_AUTHN_RP_NAME"
	// WebAuthnRPIDKey overrides the WebAuthn relying party ID.
	WebAuthnRPIDKey = "WEB_AUTHN_RPID"
	// WebAuthnOriginKey overrides the WebAuthn origin.
	WebAuthnOriginKey = "WEB_AUTHN_ORIGIN"
	// WebAuthnOriginsKey overrides the WebAuthn origin list.
	WebAuthnOriginsKey = "WEB_AUTHN_ORIGINS"
)
