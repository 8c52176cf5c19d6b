package constant

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	// Sequence numbers in a period id are three digits wide.
	MaxDrawsPerDay = 999

	MoneyPlaces = 2
)
