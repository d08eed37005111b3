package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"edgeagent/internal/model"
)

// Reporting policies.
const (
	PolicyImmediate = "immediate"
	PolicyWindowed  = "windowed"
)

// Transports.
const (
	TransportMQTT      = "mqtt"
	TransportWebsocket = "websocket"
)

// CaptureUDP selects the UDP camera listener instead of a gocv capture device.
const CaptureUDP = "udp"

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	DeviceID string `yaml:"device_id"`
	ModuleID string `yaml:"module_id"`

	// Detection and reporting
	ReportingPolicy     string                  `yaml:"reporting_policy"`
	ConfidenceThreshold float64                 `yaml:"confidence_threshold"`
	AlertThreshold      float64                 `yaml:"alert_threshold"`
	AlertProperty       string                  `yaml:"alert_property"`
	Categories          []model.CategoryBinding `yaml:"categories"`
	WindowDuration      time.Duration           `yaml:"window_duration"`
	MaxRecordsPerFrame  int                     `yaml:"max_records_per_frame"` // 0 = unbounded
	OutputChannel       string                  `yaml:"output_channel"`

	// Transport
	Transport      string        `yaml:"transport"`
	MQTT           MQTTConfig    `yaml:"mqtt"`
	MessageTimeout time.Duration `yaml:"message_timeout"`
	SendQueueSize  int           `yaml:"send_queue_size"`
	SendWorkers    int           `yaml:"send_workers"`
	PendingTTL     time.Duration `yaml:"pending_ttl"` // 0 = pending sends never expire

	// Capture and model
	CaptureSource string            `yaml:"capture_source"` // device index, file, URL or "udp"
	CamerasPort   int               `yaml:"cameras_port"`
	CameraNames   map[string]string `yaml:"camera_names"` // UDP sender IP -> camera name
	ModelPath     string            `yaml:"model_path"`
	ConfigPath    string            `yaml:"config_path"`

	// Status server, journal, logs
	HTTPPort             int           `yaml:"http_port"`
	StatusToken          string        `yaml:"status_token"`
	JournalPath          string        `yaml:"journal_path"`
	JournalFlushInterval time.Duration `yaml:"journal_flush_interval"`
	JournalBufferLimit   int           `yaml:"journal_buffer_limit"`
	LogDirectory         string        `yaml:"log_dir"`
	Debug                bool          `yaml:"debug"`
}

type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// Default returns the configuration of the reference deployment.
func Default() *Config {
	return &Config{
		DeviceID:            "myPythonDevice",
		ModuleID:            "OpenCvModule",
		ReportingPolicy:     PolicyImmediate,
		ConfidenceThreshold: 0.3,
		AlertThreshold:      0.5,
		AlertProperty:       "temperatureAlert",
		Categories: []model.CategoryBinding{
			{ClassID: 52, Name: "banana"},
			{ClassID: 55, Name: "orange"},
		},
		WindowDuration: 5 * time.Second,
		OutputChannel:  "temperatureOutput",

		Transport: TransportMQTT,
		MQTT: MQTTConfig{
			Broker: "tcp://localhost:1883",
			QoS:    1,
		},
		MessageTimeout: 10 * time.Second,
		SendQueueSize:  256,
		SendWorkers:    4,

		CaptureSource: "0",
		CamerasPort:   9000,
		CameraNames:   map[string]string{},
		ModelPath:     filepath.Join(".", "model", "frozen_inference_graph.pb"),
		ConfigPath:    filepath.Join(".", "model", "ssd_mobilenet_v2_coco_2018_03_29.pbtxt"),

		HTTPPort:             8080,
		JournalPath:          filepath.Join(".", "data", "deliveries.db"),
		JournalFlushInterval: 30 * time.Second,
		JournalBufferLimit:   1000,
		LogDirectory:         filepath.Join(".", "logs"),
	}
}

// Load builds the configuration: defaults, then the optional YAML file at path,
// then environment variables (after loading envFile, if it exists). The result is validated.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields with any environment variable that is set.
func (c *Config) applyEnv() error {
	c.DeviceID = getEnv("DEVICE_ID", c.DeviceID)
	c.ModuleID = getEnv("MODULE_ID", c.ModuleID)

	c.ReportingPolicy = strings.ToLower(getEnv("REPORTING_POLICY", c.ReportingPolicy))
	c.ConfidenceThreshold = getEnvAsFloat("CONFIDENCE_THRESHOLD", c.ConfidenceThreshold)
	c.AlertThreshold = getEnvAsFloat("ALERT_THRESHOLD", c.AlertThreshold)
	c.AlertProperty = getEnv("ALERT_PROPERTY", c.AlertProperty)
	if raw := os.Getenv("CATEGORIES"); raw != "" {
		bindings, err := model.ParseCategoryBindings(raw)
		if err != nil {
			return fmt.Errorf("%w: CATEGORIES: %v", ErrInvalid, err)
		}
		c.Categories = bindings
	}
	c.WindowDuration = getEnvAsDuration("WINDOW_DURATION", c.WindowDuration)
	c.MaxRecordsPerFrame = getEnvAsInt("MAX_RECORDS_PER_FRAME", c.MaxRecordsPerFrame)
	c.OutputChannel = getEnv("OUTPUT_CHANNEL", c.OutputChannel)

	c.Transport = strings.ToLower(getEnv("TRANSPORT", c.Transport))
	c.MQTT.Broker = getEnv("MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", c.MQTT.ClientID)
	c.MQTT.Username = getEnv("MQTT_USERNAME", c.MQTT.Username)
	c.MQTT.Password = getEnv("MQTT_PASSWORD", c.MQTT.Password)
	c.MQTT.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", c.MQTT.TopicPrefix)
	c.MQTT.QoS = byte(getEnvAsInt("MQTT_QOS", int(c.MQTT.QoS)))
	c.MessageTimeout = getEnvAsDuration("MESSAGE_TIMEOUT", c.MessageTimeout)
	c.SendQueueSize = getEnvAsInt("SEND_QUEUE_SIZE", c.SendQueueSize)
	c.SendWorkers = getEnvAsInt("SEND_WORKERS", c.SendWorkers)
	c.PendingTTL = getEnvAsDuration("PENDING_TTL", c.PendingTTL)

	c.CaptureSource = getEnv("CAPTURE_SOURCE", c.CaptureSource)
	c.CamerasPort = getEnvAsInt("CAMERAS_PORT", c.CamerasPort)
	c.ModelPath = getEnv("MODEL_PATH", c.ModelPath)
	c.ConfigPath = getEnv("CONFIG_PATH", c.ConfigPath)

	c.HTTPPort = getEnvAsInt("HTTP_PORT", c.HTTPPort)
	c.StatusToken = getEnv("STATUS_TOKEN", c.StatusToken)
	c.JournalPath = getEnv("JOURNAL_PATH", c.JournalPath)
	c.JournalFlushInterval = getEnvAsDuration("JOURNAL_FLUSH_INTERVAL", c.JournalFlushInterval)
	c.JournalBufferLimit = getEnvAsInt("JOURNAL_BUFFER_LIMIT", c.JournalBufferLimit)
	c.LogDirectory = getEnv("LOG_DIR", c.LogDirectory)
	c.Debug = getEnvAsBool("LOG_DEBUG", c.Debug)
	return nil
}

// CategoryMap builds the immutable category lookup.
func (c *Config) CategoryMap() (model.CategoryMap, error) {
	return model.NewCategoryMap(c.Categories)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("5s") or plain milliseconds ("10000").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
