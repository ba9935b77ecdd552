package buildconfig

// Build-time variables injected via ldflags
var (
	version = "dev"
	commit  = "unknown"
)

// Version returns the build version
func Version() string {
	return version
}

// Commit returns the git commit hash
func Commit() string {
	return commit
}

// VersionInfo returns build information together with the inference model
// version the process serves.
func VersionInfo(modelVersion string) map[string]string {
	return map[string]string{
		"version":       version,
		"commit":        commit,
		"model_version": modelVersion,
	}
}
