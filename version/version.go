package version

var (
	Version    = "0.1"
	GitHash    = "devXXXX"
	BuildTS    = "2026-01-01T00:00:00Z" // to be replaced at build time
	APIVersion = "1.0"
	OS         = "linux"
	Model      = "VCU1525"
	DeviceCode = "BTCF"
	Agent      = "vcu_miner/" + Version
	Branch     = "main"
)

type VersionConfig struct {
	Version    string `json:"Version"`
	GitHash    string `json:"GitHash"`
	BuildTS    string `json:"BuildTS"`
	APIVersion string `json:"APIVersion"`
	OS         string `json:"OS"`
	Model      string `json:"Model"`
	DeviceCode string `json:"DeviceCode"`
	Agent      string `json:"Agent"`
	Branch     string `json:"Branch"`
}

// GetVersionConfig is built on each call so -ldflags overrides of the vars
// above are reflected.
func GetVersionConfig() VersionConfig {
	return VersionConfig{
		Version:    Version,
		GitHash:    GitHash,
		BuildTS:    BuildTS,
		APIVersion: APIVersion,
		OS:         OS,
		Model:      Model,
		DeviceCode: DeviceCode,
		Agent:      Agent,
		Branch:     Branch,
	}
}
