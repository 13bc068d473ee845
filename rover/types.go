package rover

import "time"

// Config represents the full configuration file
type Config struct {
	Log     LogConfig     `yaml:"log" json:"log"`
	Link    LinkConfig    `yaml:"link" json:"link"`
	MQTT    MQTTConfig    `yaml:"mqtt" json:"mqtt"`
	HTTP    HTTPConfig    `yaml:"http" json:"http"`
	Vehicle VehicleConfig `yaml:"vehicle" json:"vehicle"`
}

// LogConfig controls log output
type LogConfig struct {
	Level string `yaml:"level" json:"level"` // trace, debug, info, warn, error
	JSON  bool   `yaml:"json" json:"json"`
}

// Link roles
const (
	RoleClient = "client"
	RoleServer = "server"
	RoleBoth   = "both"
)

// Link transports
const (
	TransportTCP  = "tcp"
	TransportMQTT = "mqtt"
)

// LinkConfig holds the radio link settings
type LinkConfig struct {
	Transport             string        `yaml:"transport" json:"transport"`
	Role                  string        `yaml:"role" json:"role"`
	Listen                string        `yaml:"listen,omitempty" json:"listen,omitempty"`
	Peer                  string        `yaml:"peer,omitempty" json:"peer,omitempty"`
	ServiceID             string        `yaml:"serviceId,omitempty" json:"serviceId,omitempty"`
	FallbackChannel       int           `yaml:"fallbackChannel" json:"fallbackChannel"`
	ChannelBasePort       int           `yaml:"channelBasePort,omitempty" json:"channelBasePort,omitempty"`
	AlternateChannelPeers []string      `yaml:"alternateChannelPeers,omitempty" json:"alternateChannelPeers,omitempty"` // peers dialled on the fixed channel first
	ReconnectInterval     time.Duration `yaml:"reconnectInterval" json:"reconnectInterval"`
	ConnectTimeout        time.Duration `yaml:"connectTimeout" json:"connectTimeout"`
}

// Dials reports whether the role makes outbound connections
func (lc LinkConfig) Dials() bool {
	return lc.Role == RoleClient || lc.Role == RoleBoth
}

// Listens reports whether the role accepts inbound connections
func (lc LinkConfig) Listens() bool {
	return lc.Role == RoleServer || lc.Role == RoleBoth
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker       string `yaml:"broker,omitempty" json:"broker,omitempty"`
	ClientID     string `yaml:"clientId,omitempty" json:"clientId,omitempty"`
	Username     string `yaml:"username,omitempty" json:"username,omitempty"`
	Password     string `yaml:"password,omitempty" json:"-"`
	Prefix       string `yaml:"prefix" json:"prefix"`
	PublishState bool   `yaml:"publishState" json:"publishState"`
}

// HTTPConfig controls the HTTP server
type HTTPConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	Port    int  `yaml:"port" json:"port"`
}

// VehicleConfig describes the vehicle body
type VehicleConfig struct {
	Width         int `yaml:"width" json:"width"`
	Height        int `yaml:"height" json:"height"`
	PivotHead     int `yaml:"pivotHead" json:"pivotHead"`
	PivotSide     int `yaml:"pivotSide" json:"pivotSide"`
	PivotBack     int `yaml:"pivotBack" json:"pivotBack"`
	PivotBackSide int `yaml:"pivotBackSide" json:"pivotBackSide"`
}

// Template returns a vehicle at the origin with this body geometry
func (vc VehicleConfig) Template() Vehicle {
	v := NewVehicle(0, 0, North)
	v.Width, v.Height = vc.Width, vc.Height
	v.PivotHead, v.PivotSide = vc.PivotHead, vc.PivotSide
	v.PivotBack, v.PivotBackSide = vc.PivotBack, vc.PivotBackSide
	return v
}
