package config

// Default values applied before file and environment overrides.
const (
	DefaultBuildConcurrency         = 0
	DefaultBuildClassWorkers        = 0
	DefaultBuildIncludeInnerClasses = true
	DefaultCacheEnabled             = false
	DefaultCacheDir                 = ""
	DefaultStorePath                = ""
	DefaultLoggingLevel             = "info"
	DefaultLoggingJSON              = false
	DefaultOTLPInsecure             = false
	DefaultSampleRatio              = 1.0
	DefaultMetricsAddr              = ""
)
