package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker          string
	MQTTClientID        string
	MQTTClientIDConsole string
	MQTTClientIDWeb     string
	MQTTUsername        string
	MQTTPassword        string

	// Topics
	TopicData    string
	TopicControl string

	// MQTT reconnect backoff
	MQTTRetryInitialMS  int
	MQTTRetryMaxMS      int
	MQTTRetryMaxAttempt int // 0 = retry forever

	// Sensor
	SensorDriver  string // "mpu6050" or "mock"
	SensorI2CBus  string
	SensorI2CAddr uint16
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	SensorAccelRange byte
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	SensorGyroRange byte
	// Digital low pass filter (0-6), 4 = 21 Hz
	SensorDLPF    byte
	SensorRetryMS int

	// Timing
	PollIntervalMS int

	// Calibration
	CalibrationFile string

	// Logging
	LogLevel  string
	LogFormat string
	LogFile   string

	// Observability / web
	MetricsAddr   string
	WebServerPort int
}

// Package-level unexported variables for the singleton:
//   - globalConfig: only InitGlobal sets it, Get reads it.
//   - configOnce: InitGlobal only loads once.
//   - configMu: write lock for initialization, read lock for Get.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a Config populated with the values the block ships with.
func Default() *Config {
	return &Config{
		MQTTBroker:          "tcp://localhost:1883",
		MQTTClientID:        "the_block",
		MQTTClientIDConsole: "block-console",
		MQTTClientIDWeb:     "block-web",

		TopicData:    "block/data",
		TopicControl: "block/menu",

		MQTTRetryInitialMS: 2000,
		MQTTRetryMaxMS:     30000,

		SensorDriver:     "mpu6050",
		SensorI2CBus:     "1",
		SensorI2CAddr:    0x68,
		SensorAccelRange: 0,
		SensorGyroRange:  1,
		SensorDLPF:       4,
		SensorRetryMS:    1000,

		PollIntervalMS: 100,

		LogLevel:  "INFO",
		LogFormat: "text",

		WebServerPort: 8080,
	}
}

// Load reads the configuration file and returns a Config struct.
// Keys not present in the file keep their Default values.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads KEY=VALUE lines from r on top of Default.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
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

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_USERNAME":
		c.MQTTUsername = value
	case "MQTT_PASSWORD":
		c.MQTTPassword = value

	// Topics
	case "TOPIC_DATA":
		c.TopicData = value
	case "TOPIC_CONTROL":
		c.TopicControl = value

	// MQTT reconnect backoff
	case "MQTT_RETRY_INITIAL_MS":
		return setPositiveInt(&c.MQTTRetryInitialMS, key, value)
	case "MQTT_RETRY_MAX_MS":
		return setPositiveInt(&c.MQTTRetryMaxMS, key, value)
	case "MQTT_RETRY_MAX_ATTEMPTS":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
		if n < 0 {
			return fmt.Errorf("%s must be >= 0 (0 = unlimited), got %d", key, n)
		}
		c.MQTTRetryMaxAttempt = n

	// Sensor
	case "SENSOR_DRIVER":
		switch value {
		case "mpu6050", "mock":
			c.SensorDriver = value
		default:
			return fmt.Errorf("SENSOR_DRIVER must be mpu6050 or mock, got %q", value)
		}
	case "SENSOR_I2C_BUS":
		c.SensorI2CBus = value
	case "SENSOR_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid SENSOR_I2C_ADDR %q: %w", value, err)
		}
		c.SensorI2CAddr = uint16(addr)
	case "SENSOR_ACCEL_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SENSOR_ACCEL_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("SENSOR_ACCEL_RANGE must be 0-3 (0=±2g, 1=±4g, 2=±8g, 3=±16g), got %d", rangeVal)
		}
		c.SensorAccelRange = byte(rangeVal)
	case "SENSOR_GYRO_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SENSOR_GYRO_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("SENSOR_GYRO_RANGE must be 0-3 (0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s), got %d", rangeVal)
		}
		c.SensorGyroRange = byte(rangeVal)
	case "SENSOR_DLPF":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SENSOR_DLPF %q: %w", value, err)
		}
		if val < 0 || val > 6 {
			return fmt.Errorf("SENSOR_DLPF must be 0-6, got %d", val)
		}
		c.SensorDLPF = byte(val)
	case "SENSOR_RETRY_MS":
		return setPositiveInt(&c.SensorRetryMS, key, value)

	// Timing
	case "POLL_INTERVAL_MS":
		return setPositiveInt(&c.PollIntervalMS, key, value)

	// Calibration
	case "CALIBRATION_FILE":
		c.CalibrationFile = value

	// Logging
	case "LOG_LEVEL":
		switch strings.ToUpper(value) {
		case "DEBUG", "INFO", "WARN", "ERROR":
			c.LogLevel = strings.ToUpper(value)
		default:
			return fmt.Errorf("LOG_LEVEL must be DEBUG, INFO, WARN or ERROR, got %q", value)
		}
	case "LOG_FORMAT":
		switch value {
		case "text", "json":
			c.LogFormat = value
		default:
			return fmt.Errorf("LOG_FORMAT must be text or json, got %q", value)
		}
	case "LOG_FILE":
		c.LogFile = value

	// Observability / web
	case "METRICS_ADDR":
		c.MetricsAddr = value
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		if port <= 0 || port > 65535 {
			return fmt.Errorf("WEB_SERVER_PORT must be 1-65535, got %d", port)
		}
		c.WebServerPort = port

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

func setPositiveInt(dst *int, key, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if n <= 0 {
		return fmt.Errorf("%s must be > 0, got %d", key, n)
	}
	*dst = n
	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.MQTTClientID == "" {
		return fmt.Errorf("MQTT_CLIENT_ID is required")
	}
	if c.TopicData == "" {
		return fmt.Errorf("TOPIC_DATA is required")
	}
	if c.TopicControl == "" {
		return fmt.Errorf("TOPIC_CONTROL is required")
	}
	if c.TopicData == c.TopicControl {
		return fmt.Errorf("TOPIC_DATA and TOPIC_CONTROL must differ")
	}
	if c.SensorDriver == "mpu6050" && c.SensorI2CBus == "" {
		return fmt.Errorf("SENSOR_I2C_BUS is required for the mpu6050 driver")
	}
	if c.MQTTRetryMaxMS < c.MQTTRetryInitialMS {
		return fmt.Errorf("MQTT_RETRY_MAX_MS (%d) must be >= MQTT_RETRY_INITIAL_MS (%d)", c.MQTTRetryMaxMS, c.MQTTRetryInitialMS)
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Only the first call loads; later calls return nil.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
