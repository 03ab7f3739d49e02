package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BekzhanKaspakov/mesa/internal/domain"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	RabbitMQ    RabbitMQConfig    `yaml:"rabbitmq"`
	Server      ServerConfig      `yaml:"server"`
	Reservation ReservationConfig `yaml:"reservation"`
	Payment     PaymentConfig     `yaml:"payment"`
	Policy      PolicyConfig      `yaml:"policy"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type RabbitMQConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type ReservationConfig struct {
	TTLMinutes           int `yaml:"ttl_minutes"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
}

// PaymentConfig controls abandoned-session cleanup. A zero TTL disables the
// payment sweeper entirely.
type PaymentConfig struct {
	SessionTTLMinutes int `yaml:"session_ttl_minutes"`
}

type PolicyConfig struct {
	ReadyCancelRoles []string `yaml:"ready_cancel_roles"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{Port: 3000},
		Reservation: ReservationConfig{
			TTLMinutes:           15,
			SweepIntervalSeconds: 30,
		},
		Policy: PolicyConfig{
			ReadyCancelRoles: []string{"admin", "cashier"},
		},
	}
}

func (c ReservationConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

func (c ReservationConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func (c PaymentConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// CancelPolicy converts the configured role names into the domain policy
// governing who may cancel READY items.
func (c PolicyConfig) CancelPolicy() domain.Policy {
	if len(c.ReadyCancelRoles) == 0 {
		return domain.DefaultPolicy()
	}
	roles := make([]domain.Role, 0, len(c.ReadyCancelRoles))
	for _, r := range c.ReadyCancelRoles {
		roles = append(roles, domain.Role(r))
	}
	return domain.Policy{ReadyCancelRoles: roles}
}
