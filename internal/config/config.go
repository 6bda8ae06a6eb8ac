package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/KevinKickass/OpenShmInspector/internal/shm"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	SHM       SHMConfig       `mapstructure:"shm"`
	Client    ClientConfig    `mapstructure:"client"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Inspector InspectorConfig `mapstructure:"inspector"`
	Setter    SetterConfig    `mapstructure:"setter"`
}

type ServerConfig struct {
	GRPCPort        int           `mapstructure:"grpc_port"`
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	// Retention prunes samples older than this at startup. Zero keeps everything.
	Retention time.Duration `mapstructure:"retention"`
}

// Auth Configuration
type AuthConfig struct {
	JWTSecretEnv   string        `mapstructure:"jwt_secret_env"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
	Users          []UserConfig  `mapstructure:"users"`
}

// UserConfig is a configured API user. PasswordHash is an argon2id encoded
// hash as printed by cmd/hashpw.
type UserConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
	Role         string `mapstructure:"role"`
}

type SHMConfig struct {
	NamePrefix  string          `mapstructure:"name_prefix"`
	DORegisters int             `mapstructure:"do_registers"`
	DIRegisters int             `mapstructure:"di_registers"`
	AORegisters int             `mapstructure:"ao_registers"`
	AIRegisters int             `mapstructure:"ai_registers"`
	Force       bool            `mapstructure:"force"`
	Semaphore   SemaphoreConfig `mapstructure:"semaphore"`
}

type SemaphoreConfig struct {
	Enable bool   `mapstructure:"enable"`
	Name   string `mapstructure:"name"`
	Force  bool   `mapstructure:"force"`
}

type ClientConfig struct {
	Mode   string       `mapstructure:"mode"`
	TCP    TCPConfig    `mapstructure:"tcp"`
	RTU    RTUConfig    `mapstructure:"rtu"`
	Modbus ModbusConfig `mapstructure:"modbus"`
}

type TCPConfig struct {
	Host             string `mapstructure:"host"`
	Port             int    `mapstructure:"port"`
	TCPTimeout       int    `mapstructure:"tcp_timeout"`
	SystemTCPTimeout bool   `mapstructure:"system_tcp_timeout"`
	Connections      int    `mapstructure:"connections"`
	Reconnect        bool   `mapstructure:"reconnect"`
	Separate         bool   `mapstructure:"separate"`
	SeparateAll      bool   `mapstructure:"separate_all"`
	SeparateList     []int  `mapstructure:"separate_list"`
}

type RTUConfig struct {
	Device   string `mapstructure:"device"`
	Baud     string `mapstructure:"baud"`
	Parity   string `mapstructure:"parity"`
	DataBits int    `mapstructure:"data_bits"`
	StopBits int    `mapstructure:"stop_bits"`
	RS485    bool   `mapstructure:"rs485"`
	ClientID int    `mapstructure:"client_id"`
}

// ModbusConfig holds protocol timeouts in seconds. Zero keeps the client's default.
type ModbusConfig struct {
	Monitor         bool    `mapstructure:"monitor"`
	ByteTimeout     float64 `mapstructure:"byte_timeout"`
	ResponseTimeout float64 `mapstructure:"response_timeout"`
}

type ToolsConfig struct {
	ShmFormat       string        `mapstructure:"shm_format"`
	StdinToModbus   string        `mapstructure:"stdin_to_modbus"`
	DumpShm         string        `mapstructure:"dump_shm"`
	WriteShm        string        `mapstructure:"write_shm"`
	SharedMemRandom string        `mapstructure:"shared_mem_random"`
	Timeout         time.Duration `mapstructure:"timeout"`
	TempDir         string        `mapstructure:"temp_dir"`
	// DataDir holds the files named by API requests, which are resolved
	// relative to it.
	DataDir string `mapstructure:"data_dir"`
}

type InspectorConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	AutoRefresh     bool          `mapstructure:"auto_refresh"`
	PresetFile      string        `mapstructure:"preset_file"`
}

type SetterConfig struct {
	ConfigFile string `mapstructure:"config_file"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix("OSI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.max_connections", 4)

	v.SetDefault("auth.jwt_secret_env", "JWT_SECRET")
	v.SetDefault("auth.access_token_ttl", "60m")

	v.SetDefault("shm.name_prefix", "modbus_")
	v.SetDefault("shm.do_registers", 65536)
	v.SetDefault("shm.di_registers", 65536)
	v.SetDefault("shm.ao_registers", 65536)
	v.SetDefault("shm.ai_registers", 65536)
	v.SetDefault("shm.semaphore.enable", true)
	v.SetDefault("shm.semaphore.name", "modbus")

	v.SetDefault("client.mode", "tcp")
	v.SetDefault("client.tcp.host", "any")
	v.SetDefault("client.tcp.port", 502)
	v.SetDefault("client.tcp.tcp_timeout", 5)
	v.SetDefault("client.tcp.connections", 1)
	v.SetDefault("client.rtu.device", "/dev/ttyUSB0")
	v.SetDefault("client.rtu.baud", "115200")
	v.SetDefault("client.rtu.parity", "N")
	v.SetDefault("client.rtu.data_bits", 8)
	v.SetDefault("client.rtu.stop_bits", 1)

	v.SetDefault("tools.shm_format", "shm-format")
	v.SetDefault("tools.stdin_to_modbus", "stdin-to-modbus-shm")
	v.SetDefault("tools.dump_shm", "dump-shm")
	v.SetDefault("tools.write_shm", "write-shm")
	v.SetDefault("tools.shared_mem_random", "shared-mem-random")
	v.SetDefault("tools.timeout", "1s")
	v.SetDefault("tools.data_dir", "data")

	v.SetDefault("inspector.refresh_interval", "1s")
	v.SetDefault("inspector.auto_refresh", false)
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// JWT Secret aus Environment Variable laden
func (a *AuthConfig) GetJWTSecret() string {
	envVar := a.JWTSecretEnv
	if envVar == "" {
		envVar = "JWT_SECRET"
	}

	secret := os.Getenv(envVar)
	if secret == "" {
		return devSecret
	}
	return secret
}

const devSecret = "dev-secret-change-in-production-min-32-chars"

// IsProductionReady reports whether a real secret of sufficient length is set.
func (a *AuthConfig) IsProductionReady() bool {
	secret := a.GetJWTSecret()
	return secret != devSecret && len(secret) >= 32
}

// SemaphoreName returns the semaphore passed to the tools, or "" when disabled.
func (s *SHMConfig) SemaphoreName() string {
	if !s.Semaphore.Enable {
		return ""
	}
	return s.Semaphore.Name
}

// Capacity returns the configured bank sizes.
func (s *SHMConfig) Capacity() shm.Capacity {
	return shm.Capacity{DO: s.DORegisters, DI: s.DIRegisters, AO: s.AORegisters, AI: s.AIRegisters}
}
