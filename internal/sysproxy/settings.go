package sysproxy

// State is the OS global proxy configuration.
type State struct {
	Enabled bool   `json:"enabled"`
	Server  string `json:"server"`
	Bypass  string `json:"bypass"`
}

// Settings is the platform capability the Controller drives. Each field is
// written separately so a partial failure can be reported precisely.
type Settings interface {
	Read() (State, error)
	SetEnabled(enabled bool) error
	SetServer(server string) error
	SetBypass(bypass string) error
	// Notify tells dependent OS components that the settings changed.
	Notify() error
}
