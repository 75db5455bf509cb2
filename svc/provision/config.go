package provision

// Config holds provisioning defaults.
type Config struct {
	TrialDays      int      `env:"PROVISION_TRIAL_DAYS" envDefault:"14"`
	PlanID         string   `env:"PROVISION_DEFAULT_PLAN" envDefault:"trial"`
	DefaultModules []string `env:"PROVISION_DEFAULT_MODULES" envSeparator:"," envDefault:"contacts,leads"`
	// SlugAttempts bounds the numeric suffixes tried before a random one.
	SlugAttempts int `env:"PROVISION_SLUG_ATTEMPTS" envDefault:"10"`
}
