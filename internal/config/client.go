// ABOUTME: Client configuration
// ABOUTME: Room, relay, player backend, sync tuning and logging settings
package config

import (
	"time"
)

var (
	server = configVar[string]{
		envKey:  "SYNCWATCH_SERVER",
		flagKey: "server",
		usage:   "Relay address (host:port or ws:// URL); discovered via mDNS when empty",
	}
	room = configVar[string]{
		envKey:  "SYNCWATCH_ROOM",
		flagKey: "room",
		usage:   "Room to join",
	}
	link = configVar[string]{
		envKey:  "SYNCWATCH_LINK",
		flagKey: "link",
		usage:   "Initial link to load for the whole room",
	}
	mode = configVar[string]{
		envKey:       "SYNCWATCH_MODE",
		flagKey:      "mode",
		defaultValue: "auto",
		usage:        "Player selection: auto (by link) or web (injected script for every link)",
	}
	nativeBackend = configVar[string]{
		envKey:       "SYNCWATCH_NATIVE_BACKEND",
		flagKey:      "native-backend",
		defaultValue: "mpv",
		usage:        "Native media backend: mpv or audio",
	}
	mpvPath = configVar[string]{
		envKey:       "SYNCWATCH_MPV_PATH",
		flagKey:      "mpv-path",
		defaultValue: "mpv",
		usage:        "mpv executable",
	}
	bridgeAddr = configVar[string]{
		envKey:       "SYNCWATCH_BRIDGE_ADDR",
		flagKey:      "bridge-addr",
		defaultValue: "127.0.0.1:8931",
		usage:        "Listen address of the local browser bridge",
	}
	syncWindow = configVar[time.Duration]{
		envKey:       "SYNCWATCH_SYNC_WINDOW",
		flagKey:      "sync-window",
		defaultValue: 500 * time.Millisecond,
		usage:        "Echo suppression window",
	}
	pausePosition = configVar[bool]{
		envKey:       "SYNCWATCH_PAUSE_POSITION",
		flagKey:      "pause-position",
		defaultValue: true,
		usage:        "Include the playback position in PAUSE messages",
	}
	healthInterval = configVar[time.Duration]{
		envKey:       "SYNCWATCH_HEALTH_INTERVAL",
		flagKey:      "health-interval",
		defaultValue: 2 * time.Second,
		usage:        "Relay link health polling interval",
	}
	eventHealth = configVar[bool]{
		envKey:  "SYNCWATCH_EVENT_HEALTH",
		flagKey: "event-health",
		usage:   "Track relay link health from connection events instead of polling only",
	}
	logLevel = configVar[string]{
		envKey:       "SYNCWATCH_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "info",
		usage:        "Logging level",
	}
	logFile = configVar[string]{
		envKey:       "SYNCWATCH_LOG_FILE",
		flagKey:      "log-file",
		defaultValue: "syncwatch.log",
		usage:        "Log file path",
	}
	noTUI = configVar[bool]{
		envKey:  "SYNCWATCH_NO_TUI",
		flagKey: "no-tui",
		usage:   "Disable TUI, stream logs instead",
	}
	discoveryTimeout = configVar[time.Duration]{
		envKey:       "SYNCWATCH_DISCOVERY_TIMEOUT",
		flagKey:      "discovery-timeout",
		defaultValue: 10 * time.Second,
		usage:        "How long to browse for a relay",
	}
)

// Client configures the watch client
type Client struct {
	Server           string        `json:"server"`
	Room             string        `json:"room" validate:"required,max=64"`
	Link             string        `json:"link"`
	Mode             string        `json:"mode" validate:"oneof=auto web"`
	NativeBackend    string        `json:"native-backend" validate:"oneof=mpv audio"`
	MPVPath          string        `json:"mpv-path" validate:"required"`
	BridgeAddr       string        `json:"bridge-addr" validate:"required,hostname_port"`
	SyncWindow       time.Duration `json:"sync-window" validate:"min=1ms"`
	PausePosition    bool          `json:"pause-position"`
	HealthInterval   time.Duration `json:"health-interval" validate:"min=100ms"`
	EventHealth      bool          `json:"event-health"`
	LogLevel         string        `json:"log-level" validate:"oneof=trace debug info warn error"`
	LogFile          string        `json:"log-file"`
	NoTUI            bool          `json:"no-tui"`
	DiscoveryTimeout time.Duration `json:"discovery-timeout" validate:"min=1s"`
}

// WebMode reports whether every link goes to the injected-script player
func (c *Client) WebMode() bool {
	return c.Mode == "web"
}

// LoadClient reads client configuration from args and the environment
func LoadClient(args []string) (*Client, error) {
	v, err := load("syncwatch", args, []binder{
		server, room, link, mode, nativeBackend, mpvPath, bridgeAddr,
		syncWindow, pausePosition, healthInterval, eventHealth,
		logLevel, logFile, noTUI, discoveryTimeout,
	})
	if err != nil {
		return nil, err
	}

	c := &Client{
		Server:           v.GetString(server.flagKey),
		Room:             v.GetString(room.flagKey),
		Link:             v.GetString(link.flagKey),
		Mode:             v.GetString(mode.flagKey),
		NativeBackend:    v.GetString(nativeBackend.flagKey),
		MPVPath:          v.GetString(mpvPath.flagKey),
		BridgeAddr:       v.GetString(bridgeAddr.flagKey),
		SyncWindow:       v.GetDuration(syncWindow.flagKey),
		PausePosition:    v.GetBool(pausePosition.flagKey),
		HealthInterval:   v.GetDuration(healthInterval.flagKey),
		EventHealth:      v.GetBool(eventHealth.flagKey),
		LogLevel:         v.GetString(logLevel.flagKey),
		LogFile:          v.GetString(logFile.flagKey),
		NoTUI:            v.GetBool(noTUI.flagKey),
		DiscoveryTimeout: v.GetDuration(discoveryTimeout.flagKey),
	}

	if err := Validate(c); err != nil {
		return nil, err
	}
	return c, nil
}
