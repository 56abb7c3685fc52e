package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// SourceType selects the transport used to read the watched value.
type SourceType string

// Supported value source types.
const (
	SourceTypeModbus SourceType = "modbus"
	SourceTypeMQTT   SourceType = "mqtt"
	SourceTypeFile   SourceType = "file"
)

// Config holds the settings shared by the plc-sentry binaries.
type Config struct {
	// Timeout bounds a single source read or connect attempt.
	Timeout time.Duration `yaml:"timeout"`
	// Source describes where the watched value comes from.
	Source SourceConfig `yaml:"source"`
	// Watch controls the polling loop and the debounce state machine.
	Watch WatchConfig `yaml:"watch"`
	// Trigger is the external backup action launched on a settled change.
	Trigger TriggerConfig `yaml:"trigger"`
	// Backup configures the queued backup runner (sentry-backup).
	Backup BackupConfig `yaml:"backup"`
	// Notify configures optional trigger-event publishing to a broker.
	Notify NotifyConfig `yaml:"notify"`
	// RunLogFile is the path to the JSON file recording completed runs.
	RunLogFile string `yaml:"run_log_file"`
	// RunLogLimit caps how many completed runs are kept, newest first.
	RunLogLimit int `yaml:"run_log_limit"`
	// ServerUpdateFolder is the URL where update artifacts are hosted.
	ServerUpdateFolder string `yaml:"update_folder"`
	// UpdateType is set at runtime by the updater to pick a role-specific
	// file set from the update manifest. It is not persisted to YAML.
	UpdateType string `yaml:"-"`
}

// SourceConfig selects and parameterizes the value source.
type SourceConfig struct {
	// Type is one of modbus, mqtt or file.
	Type SourceType `yaml:"type"`
	// Modbus holds Modbus/TCP parameters, used when Type is modbus.
	Modbus ModbusConfig `yaml:"modbus"`
	// MQTT holds broker parameters, used when Type is mqtt.
	MQTT MQTTConfig `yaml:"mqtt"`
	// File holds the local file path, used when Type is file.
	File FileConfig `yaml:"file"`
}

// ModbusConfig describes how to reach the value over Modbus/TCP.
type ModbusConfig struct {
	// Address is the gateway host:port.
	Address string `yaml:"address"`
	// UnitID is the Modbus unit (slave) identifier.
	UnitID uint8 `yaml:"unit_id"`
	// Register is the first holding register of the watched value.
	Register uint16 `yaml:"register"`
	// RegisterCount is how many consecutive registers hold the value:
	// 1 (16-bit), 2 (32-bit) or 4 (64-bit), big-endian.
	RegisterCount uint16 `yaml:"register_count"`
}

// MQTTConfig describes how to receive the value from an MQTT broker.
type MQTTConfig struct {
	// Broker is the broker URL, e.g. tcp://broker:1883.
	Broker string `yaml:"broker"`
	// Topic is where the gateway publishes the watched value.
	Topic string `yaml:"topic"`
	// ClientID identifies this subscriber; derived from the hostname when empty.
	ClientID string `yaml:"client_id"`
	// MaxSampleAge fails reads whose latest sample is older than this.
	// Zero disables the staleness check.
	MaxSampleAge time.Duration `yaml:"max_sample_age"`
}

// FileConfig describes a local text file holding the value.
type FileConfig struct {
	// Path is the file containing the value as a decimal integer.
	Path string `yaml:"path"`
}

// WatchConfig controls the polling loop and debounce behavior.
type WatchConfig struct {
	// TagName labels the watched value in logs and events.
	TagName string `yaml:"tag_name"`
	// PollInterval is the fixed cadence of value reads.
	PollInterval time.Duration `yaml:"poll_interval"`
	// StabilityPeriod is how long a changed value must stay unchanged
	// before the backup action fires.
	StabilityPeriod time.Duration `yaml:"stability_period"`
	// CheckpointFile persists the debounce state across restarts when set.
	// Empty means a restart starts with no baseline.
	CheckpointFile string `yaml:"checkpoint_file"`
}

// TriggerConfig is the external backup action.
type TriggerConfig struct {
	// Command is the program and its arguments.
	Command []string `yaml:"command"`
	// WorkingDirectory is where the command runs. Empty means inherit.
	WorkingDirectory string `yaml:"working_dir"`
}

// BackupConfig parameterizes the queued backup runner.
type BackupConfig struct {
	// UploadCommand is the vendor CLI that uploads the controller program.
	// A literal "{output}" argument is replaced with a timestamped
	// destination path under SaveDirectory.
	UploadCommand []string `yaml:"upload_command"`
	// WorkingDirectory is where the upload command runs.
	WorkingDirectory string `yaml:"working_dir"`
	// SaveDirectory is where backup artifacts land.
	SaveDirectory string `yaml:"save_dir"`
	// FilePrefix narrows which files in SaveDirectory belong to this station.
	FilePrefix string `yaml:"file_prefix"`
	// FileExtension of backup artifacts, compared case-insensitively.
	FileExtension string `yaml:"file_extension"`
	// KeepCopies prunes matching artifacts beyond the newest N. Zero keeps all.
	KeepCopies int `yaml:"keep_copies"`
	// LockFile serializes backups machine-wide; defaults to a dotfile in
	// the user's home directory.
	LockFile string `yaml:"lock_file"`
	// LockWait is the longest a queued backup waits for the lock.
	LockWait time.Duration `yaml:"lock_wait"`
	// LockPollInterval is how often a queued backup re-checks the lock.
	LockPollInterval time.Duration `yaml:"lock_poll_interval"`
}

// NotifyConfig configures trigger-event publishing. An empty broker
// disables notifications.
type NotifyConfig struct {
	// Broker is the MQTT broker URL.
	Broker string `yaml:"broker"`
	// Topic is where trigger lifecycle events are published.
	Topic string `yaml:"topic"`
	// ClientID identifies this publisher; derived from the hostname when empty.
	ClientID string `yaml:"client_id"`
}

const (
	// DefaultConfigFilename is the default filename for station settings.
	DefaultConfigFilename = "plc-sentry-settings.yaml"

	// DefaultRunLogFilename is the default filename for the run log JSON.
	DefaultRunLogFilename = "plc-sentry-runs.json"

	// DefaultTagName is the controller tag conventionally used to detect
	// program edits.
	DefaultTagName = "ControllerAuditValue"

	// DefaultPollInterval is the default cadence of value reads.
	DefaultPollInterval = 2 * time.Second

	// DefaultStabilityPeriod is the default quiet period after a change.
	DefaultStabilityPeriod = 30 * time.Minute

	// DefaultTimeout is the default duration for source operations.
	DefaultTimeout = 5 * time.Second

	// DefaultFileExtension is the default backup artifact extension.
	DefaultFileExtension = ".ACD"

	// DefaultLockWait is the longest a queued backup waits for its turn.
	DefaultLockWait = time.Hour

	// DefaultLockPollInterval is how often a queued backup re-checks the lock.
	DefaultLockPollInterval = 10 * time.Second

	// DefaultRunLogLimit caps the run log length.
	DefaultRunLogLimit = 100

	// DefaultModbusUnitID addresses the first unit behind the gateway.
	DefaultModbusUnitID uint8 = 1

	// DefaultModbusRegisterCount reads a single 16-bit register.
	DefaultModbusRegisterCount uint16 = 1

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errSourceTypeUnknown is returned for source types other than modbus, mqtt or file.
	errSourceTypeUnknown = errors.New("unknown source type")
	// errModbusAddressRequired is returned when the modbus gateway address is missing.
	errModbusAddressRequired = errors.New("modbus address must be provided")
	// errModbusRegisterCount is returned for unsupported register counts.
	errModbusRegisterCount = errors.New("modbus register count must be 1, 2 or 4")
	// errMQTTBrokerRequired is returned when the mqtt broker URL is missing.
	errMQTTBrokerRequired = errors.New("mqtt broker must be provided")
	// errMQTTTopicRequired is returned when the mqtt topic is missing.
	errMQTTTopicRequired = errors.New("mqtt topic must be provided")
	// errFilePathRequired is returned when the file source path is missing.
	errFilePathRequired = errors.New("file source path must be provided")
	// errTriggerCommandRequired is returned when no backup action is configured.
	errTriggerCommandRequired = errors.New("trigger command must be provided")
)

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and formatting,
// applying defaults for everything optional.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	if err := validateSource(&settings.Source); err != nil {
		return err
	}

	if len(settings.Trigger.Command) == 0 {
		return errTriggerCommandRequired
	}

	applyDefaults(settings)

	if settings.ServerUpdateFolder == "" {
		return nil
	}

	if _, err := url.ParseRequestURI(settings.ServerUpdateFolder); err != nil {
		return fmt.Errorf("invalid update folder URI: %w", err)
	}

	return nil
}

// validateSource checks the source section for the selected transport.
func validateSource(source *SourceConfig) error {
	switch source.Type {
	case SourceTypeModbus:
		if source.Modbus.Address == "" {
			return errModbusAddressRequired
		}

		if _, err := net.ResolveTCPAddr("tcp", source.Modbus.Address); err != nil {
			return fmt.Errorf("invalid modbus address: %w", err)
		}

		if source.Modbus.UnitID == 0 {
			source.Modbus.UnitID = DefaultModbusUnitID
		}

		switch source.Modbus.RegisterCount {
		case 0:
			source.Modbus.RegisterCount = DefaultModbusRegisterCount
		case 1, 2, 4:
		default:
			return fmt.Errorf("%w: %d", errModbusRegisterCount, source.Modbus.RegisterCount)
		}
	case SourceTypeMQTT:
		if source.MQTT.Broker == "" {
			return errMQTTBrokerRequired
		}

		if source.MQTT.Topic == "" {
			return errMQTTTopicRequired
		}
	case SourceTypeFile:
		if source.File.Path == "" {
			return errFilePathRequired
		}
	default:
		return fmt.Errorf("%w: %q", errSourceTypeUnknown, source.Type)
	}

	return nil
}

// applyDefaults fills optional fields that were omitted or zeroed.
func applyDefaults(settings *Config) {
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}

	if settings.Watch.TagName == "" {
		settings.Watch.TagName = DefaultTagName
	}

	if settings.Watch.PollInterval <= 0 {
		settings.Watch.PollInterval = DefaultPollInterval
	}

	if settings.Watch.StabilityPeriod <= 0 {
		settings.Watch.StabilityPeriod = DefaultStabilityPeriod
	}

	if settings.Backup.FileExtension == "" {
		settings.Backup.FileExtension = DefaultFileExtension
	}

	if settings.Backup.LockWait <= 0 {
		settings.Backup.LockWait = DefaultLockWait
	}

	if settings.Backup.LockPollInterval <= 0 {
		settings.Backup.LockPollInterval = DefaultLockPollInterval
	}

	if settings.RunLogFile == "" {
		settings.RunLogFile = DefaultRunLogFilename
	}

	if settings.RunLogLimit <= 0 {
		settings.RunLogLimit = DefaultRunLogLimit
	}
}
