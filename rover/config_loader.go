package rover

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. GRIDLINK_MQTT_BROKER
const EnvPrefix = "GRIDLINK"

// setDefaults registers every key so that environment overrides apply even
// when the key is absent from the file
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("link.transport", TransportTCP)
	v.SetDefault("link.role", RoleClient)
	v.SetDefault("link.listen", "")
	v.SetDefault("link.peer", "")
	v.SetDefault("link.serviceId", "")
	v.SetDefault("link.fallbackChannel", 1)
	v.SetDefault("link.channelBasePort", 5000)
	v.SetDefault("link.alternateChannelPeers", []string{})
	v.SetDefault("link.reconnectInterval", "5s")
	v.SetDefault("link.connectTimeout", "10s")

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.clientId", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.prefix", "gridlink")
	v.SetDefault("mqtt.publishState", false)

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.port", 8080)

	v.SetDefault("vehicle.width", DefaultVehicleWidth)
	v.SetDefault("vehicle.height", DefaultVehicleHeight)
	v.SetDefault("vehicle.pivotHead", DefaultPivotOffset)
	v.SetDefault("vehicle.pivotSide", DefaultPivotOffset)
	v.SetDefault("vehicle.pivotBack", DefaultPivotOffset)
	v.SetDefault("vehicle.pivotBackSide", DefaultPivotOffset)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig loads the configuration from a YAML file, then applies
// GRIDLINK_* environment overrides. An empty path uses defaults and the
// environment only.
func LoadConfig(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing config YAML: %w", err)
		}
		if err := v.MergeConfigMap(raw); err != nil {
			return nil, fmt.Errorf("merging config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// DefaultConfig returns the configuration with no file and no environment
func DefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	_ = v.Unmarshal(&config)
	return &config
}

// Validate checks the configuration for contradictions
func (c *Config) Validate() error {
	var errs []error

	switch c.Link.Transport {
	case TransportTCP:
	case TransportMQTT:
		if c.MQTT.Broker == "" {
			errs = append(errs, fmt.Errorf("mqtt.broker is required when link.transport is mqtt"))
		}
	default:
		errs = append(errs, fmt.Errorf("link.transport must be tcp or mqtt, got %q", c.Link.Transport))
	}

	switch c.Link.Role {
	case RoleClient, RoleServer, RoleBoth:
	default:
		errs = append(errs, fmt.Errorf("link.role must be client, server or both, got %q", c.Link.Role))
	}
	if c.Link.Listens() && c.Link.Transport == TransportTCP && c.Link.Listen == "" {
		errs = append(errs, fmt.Errorf("link.listen is required for role %s", c.Link.Role))
	}
	if c.Link.FallbackChannel < 0 {
		errs = append(errs, fmt.Errorf("link.fallbackChannel must not be negative"))
	}
	if c.Link.ReconnectInterval <= 0 {
		errs = append(errs, fmt.Errorf("link.reconnectInterval must be positive"))
	}
	if c.Link.ConnectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("link.connectTimeout must be positive"))
	}
	if c.MQTT.PublishState && c.MQTT.Broker == "" {
		errs = append(errs, fmt.Errorf("mqtt.broker is required when mqtt.publishState is set"))
	}

	if c.HTTP.Enabled && (c.HTTP.Port <= 0 || c.HTTP.Port > 65535) {
		errs = append(errs, fmt.Errorf("http.port %d out of range", c.HTTP.Port))
	}

	vc := c.Vehicle
	if vc.Width < 1 || vc.Height < 1 || vc.Width > GridSize || vc.Height > GridSize {
		errs = append(errs, fmt.Errorf("vehicle size %dx%d must be within 1..%d", vc.Width, vc.Height, GridSize))
	}
	if vc.PivotHead < 0 || vc.PivotSide < 0 || vc.PivotBack < 0 || vc.PivotBackSide < 0 {
		errs = append(errs, fmt.Errorf("vehicle pivot offsets must not be negative"))
	}

	return errors.Join(errs...)
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
