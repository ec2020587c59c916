// ABOUTME: Relay configuration
// ABOUTME: Listen address, backplane and advertisement settings
package config

var (
	relayHost = configVar[string]{
		envKey:       "RELAY_HOST",
		flagKey:      "host",
		defaultValue: "0.0.0.0",
		usage:        "Relay host",
	}
	relayPort = configVar[int]{
		envKey:       "RELAY_PORT",
		flagKey:      "port",
		defaultValue: 8080,
		usage:        "Relay port",
	}
	relayLogLevel = configVar[string]{
		envKey:       "RELAY_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "info",
		usage:        "Logging level",
	}
	redisAddr = configVar[string]{
		envKey:  "REDIS_ADDR",
		flagKey: "redis-addr",
		usage:   "Redis address for sharing rooms between relays; empty runs standalone",
	}
	redisPassword = configVar[string]{
		envKey:  "REDIS_PASSWORD",
		flagKey: "redis-password",
		usage:   "Redis password",
	}
	relayMDNS = configVar[bool]{
		envKey:       "RELAY_MDNS",
		flagKey:      "mdns",
		defaultValue: true,
		usage:        "Advertise the relay via mDNS",
	}
	relayName = configVar[string]{
		envKey:       "RELAY_NAME",
		flagKey:      "name",
		defaultValue: "syncwatch-relay",
		usage:        "Name advertised via mDNS",
	}
)

// Relay configures the relay server
type Relay struct {
	Host          string `json:"host" validate:"required"`
	Port          int    `json:"port" validate:"min=1,max=65535"`
	LogLevel      string `json:"log-level" validate:"oneof=trace debug info warn error"`
	RedisAddr     string `json:"redis-addr" validate:"omitempty,hostname_port"`
	RedisPassword string `json:"-"`
	MDNS          bool   `json:"mdns"`
	Name          string `json:"name" validate:"required"`
}

// LoadRelay reads relay configuration from args and the environment
func LoadRelay(args []string) (*Relay, error) {
	v, err := load("syncwatch-relay", args, []binder{
		relayHost, relayPort, relayLogLevel, redisAddr, redisPassword, relayMDNS, relayName,
	})
	if err != nil {
		return nil, err
	}

	c := &Relay{
		Host:          v.GetString(relayHost.flagKey),
		Port:          v.GetInt(relayPort.flagKey),
		LogLevel:      v.GetString(relayLogLevel.flagKey),
		RedisAddr:     v.GetString(redisAddr.flagKey),
		RedisPassword: v.GetString(redisPassword.flagKey),
		MDNS:          v.GetBool(relayMDNS.flagKey),
		Name:          v.GetString(relayName.flagKey),
	}

	if err := Validate(c); err != nil {
		return nil, err
	}
	return c, nil
}
