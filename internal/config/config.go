package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker            string
	MQTTClientIDWearable  string
	MQTTClientIDCompanion string
	MQTTClientIDHapticCtl string

	// Topics
	TopicWearableOut  string
	TopicCompanionOut string

	// Motion source: "mock", "i2c" or "serial"
	MotionSource     string
	MotionI2CBus     string
	MotionI2CAddr    uint16
	MotionSerialPort string
	MotionSerialBaud uint

	// Sampling
	SampleInterval int // milliseconds

	// Haptics. Empty pin selects the recording mock actuator.
	HapticGPIOPin string

	// Status display (SSD1306)
	DisplayEnabled bool
	DisplayI2CAddr uint16

	// Persistence
	WearableStateFile  string
	CompanionStateFile string

	// Companion web server
	CompanionHTTPPort int

	// Logging
	LogLevel  string
	LogFormat string
}

// Package-level unexported variables for the singleton pattern. External
// code must use InitGlobal() to set and Get() to read, ensuring thread
// safety: configOnce makes initialization run once, configMu allows
// concurrent readers.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := defaults()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		MQTTClientIDWearable:  "gait-assist-wearable",
		MQTTClientIDCompanion: "gait-assist-companion",
		MQTTClientIDHapticCtl: "gait-assist-hapticctl",
		TopicWearableOut:      "gait/wearable",
		TopicCompanionOut:     "gait/companion",
		MotionSource:          "mock",
		MotionI2CAddr:         0x68,
		MotionSerialBaud:      115200,
		SampleInterval:        20, // 50 Hz
		DisplayI2CAddr:        0x3C,
		WearableStateFile:     "wearable_state.json",
		CompanionStateFile:    "companion_state.json",
		CompanionHTTPPort:     8080,
		LogLevel:              "info",
		LogFormat:             "console",
	}
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_WEARABLE":
		c.MQTTClientIDWearable = value
	case "MQTT_CLIENT_ID_COMPANION":
		c.MQTTClientIDCompanion = value
	case "MQTT_CLIENT_ID_HAPTICCTL":
		c.MQTTClientIDHapticCtl = value

	// Topics
	case "TOPIC_WEARABLE_OUT":
		c.TopicWearableOut = value
	case "TOPIC_COMPANION_OUT":
		c.TopicCompanionOut = value

	// Motion source
	case "MOTION_SOURCE":
		switch value {
		case "mock", "i2c", "serial":
			c.MotionSource = value
		default:
			return fmt.Errorf("MOTION_SOURCE must be mock, i2c or serial, got %q", value)
		}
	case "MOTION_I2C_BUS":
		c.MotionI2CBus = value
	case "MOTION_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid MOTION_I2C_ADDR %q: %w", value, err)
		}
		c.MotionI2CAddr = uint16(addr)
	case "MOTION_SERIAL_PORT":
		c.MotionSerialPort = value
	case "MOTION_SERIAL_BAUD":
		baud, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid MOTION_SERIAL_BAUD %q: %w", value, err)
		}
		c.MotionSerialBaud = uint(baud)

	// Sampling
	case "SAMPLE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SAMPLE_INTERVAL %q: %w", value, err)
		}
		if interval <= 0 {
			return fmt.Errorf("SAMPLE_INTERVAL must be positive, got %d", interval)
		}
		c.SampleInterval = interval

	// Haptics
	case "HAPTIC_GPIO_PIN":
		c.HapticGPIOPin = value

	// Display
	case "DISPLAY_ENABLED":
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_ENABLED %q: %w", value, err)
		}
		c.DisplayEnabled = enabled
	case "DISPLAY_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, err)
		}
		c.DisplayI2CAddr = uint16(addr)

	// Persistence
	case "WEARABLE_STATE_FILE":
		c.WearableStateFile = value
	case "COMPANION_STATE_FILE":
		c.CompanionStateFile = value

	// Companion web server
	case "COMPANION_HTTP_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid COMPANION_HTTP_PORT %q: %w", value, err)
		}
		c.CompanionHTTPPort = port

	// Logging
	case "LOG_LEVEL":
		c.LogLevel = value
	case "LOG_FORMAT":
		c.LogFormat = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.MotionSource == "i2c" && c.MotionI2CAddr == 0 {
		return fmt.Errorf("MOTION_I2C_ADDR is required for the i2c motion source")
	}
	if c.MotionSource == "serial" && c.MotionSerialPort == "" {
		return fmt.Errorf("MOTION_SERIAL_PORT is required for the serial motion source")
	}
	return nil
}

// InitGlobal initializes the global configuration from file. Uses
// sync.Once so this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance. InitGlobal must be
// called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
