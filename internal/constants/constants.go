package constants

// File names
const (
	ConfigFileName   = "config.yaml"
	MarkerFileName   = "last_update.txt"
	SettingsFileName = "launcher.jsonc"
	EngineExecName   = "clash-core"
)

// Directory names
const (
	EngineDirName = "clash"
	ConfigDirName = "config"
	LogsDirName   = "logs"
)

// Log file names
const (
	MainLogFileName = "launcher.log"
)

// Process names for checking
const (
	EngineProcessNameWindows = "clash-core.exe"
	EngineProcessNameUnix    = "clash-core"
)

// Proxy group names written into the engine configuration.
const (
	SelectorGroupName = "node-select"
	AutoGroupName     = "auto-select"
	DirectPolicy      = "DIRECT"
)

// Network constants
const (
	DefaultMixedPort          = 7890
	DefaultExternalController = "127.0.0.1:9090"
	DefaultListenAddr         = "127.0.0.1:8080"
	DefaultSTUNServer         = "stun.l.google.com:19302"
	DelayProbeURL             = "http://www.gstatic.com/generate_204"
)

// Application version
// Can be overridden at build time using -ldflags="-X clash-launcher/internal/constants.AppVersion=..."
var (
	AppVersion = "v0.1.0"
)
