package config

import (
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	configDir       string = "crashwalk"
	configDirHidden string = ".crashwalk"
	configFile      string = "config.yml"
)

// Config defines all configuration options available to be set through the config file.
type Config struct {
	// ReportFlags is a comma separated list of crash report sections, see
	// 'crashwalk flags'. If empty the platform default is used.
	ReportFlags string `yaml:"report-flags,omitempty"`

	// Symbolizer is the command line of an addr2line compatible symbolizer,
	// "-f -C -e <module> <address>" is appended to it. Defaults to
	// "addr2line".
	Symbolizer string `yaml:"symbolizer,omitempty"`
	// SymbolizerTimeout bounds a single symbolizer invocation (for example
	// "5s"). Empty or zero means no timeout.
	SymbolizerTimeout string `yaml:"symbolizer-timeout,omitempty"`
	// SymbolCacheSize is the number of symbolized addresses kept in memory.
	SymbolCacheSize *int `yaml:"symbol-cache-size,omitempty"`

	// DebuggerCommand is run when a crash report asks for a debugger,
	// {pid} is replaced with the id of the crashed process.
	DebuggerCommand string `yaml:"debugger-command,omitempty"`

	// MaxScan is the maximum number of stack bytes the heuristic unwinder
	// examines when the frame pointer chain is broken.
	MaxScan *int `yaml:"max-scan,omitempty"`
	// MaxFrames is the maximum number of lines of a rendered stack trace.
	MaxFrames *int `yaml:"max-frames,omitempty"`

	// Color selects colored section headers: "auto", "always" or "never".
	Color string `yaml:"color,omitempty"`
}

// SymbolizerTimeoutDuration returns the parsed SymbolizerTimeout, zero if
// it is unset.
func (c *Config) SymbolizerTimeoutDuration() (time.Duration, error) {
	if c.SymbolizerTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.SymbolizerTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid symbolizer-timeout %q: %v", c.SymbolizerTimeout, err)
	}
	return d, nil
}

// SymbolizerCommand splits the Symbolizer option into program and arguments.
func (c *Config) SymbolizerCommand() []string {
	if c.Symbolizer == "" {
		return []string{"addr2line"}
	}
	return SplitQuotedFields(c.Symbolizer, '\'')
}

// LoadConfig attempts to populate a Config object from the config.yml file.
func LoadConfig() (*Config, error) {
	err := createConfigPath()
	if err != nil {
		return &Config{}, fmt.Errorf("could not create config directory: %v", err)
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return &Config{}, fmt.Errorf("unable to get config file path: %v", err)
	}

	if _, err := os.Stat(fullConfigFile); os.IsNotExist(err) {
		f, err := os.Create(fullConfigFile)
		if err != nil {
			return &Config{}, fmt.Errorf("unable to create config file: %v", err)
		}
		err = writeDefaultConfig(f)
		f.Close()
		if err != nil {
			return &Config{}, fmt.Errorf("unable to write default configuration: %v", err)
		}
	}

	return LoadConfigFile(fullConfigFile)
}

// LoadConfigFile reads the configuration stored at path.
func LoadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return &Config{}, err
	}
	defer f.Close()
	return readConfig(f)
}

func readConfig(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return &Config{}, fmt.Errorf("unable to read config data: %v", err)
	}

	var c Config
	err = yaml.Unmarshal(data, &c)
	if err != nil {
		return &Config{}, fmt.Errorf("unable to decode config file: %v", err)
	}
	if _, err := c.SymbolizerTimeoutDuration(); err != nil {
		return &Config{}, err
	}
	return &c, nil
}

// SaveConfig will marshal and save the config struct
// to disk.
func SaveConfig(conf *Config) error {
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return err
	}
	return SaveConfigFile(fullConfigFile, conf)
}

// SaveConfigFile writes conf to path. Comments of the file are not kept.
func SaveConfigFile(path string, conf *Config) error {
	out, err := yaml.Marshal(*conf)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0600)
}

// Keys returns the names of the configuration options, in file order.
func Keys() []string {
	t := reflect.TypeOf(Config{})
	keys := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		keys = append(keys, strings.Split(t.Field(i).Tag.Get("yaml"), ",")[0])
	}
	return keys
}

// Set assigns value, parsed as YAML, to the option key. An empty value
// unsets the option. c is left untouched when the result is invalid.
func (c *Config) Set(key, value string) error {
	found := false
	for _, k := range Keys() {
		if k == key {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("unknown configuration option %q", key)
	}
	var v interface{}
	if err := yaml.Unmarshal([]byte(value), &v); err != nil {
		return fmt.Errorf("invalid value for %s: %v", key, err)
	}
	data, err := yaml.Marshal(map[string]interface{}{key: v})
	if err != nil {
		return err
	}
	n := c.clone()
	if err := yaml.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid value for %s: %v", key, err)
	}
	if _, err := n.SymbolizerTimeoutDuration(); err != nil {
		return err
	}
	*c = n
	return nil
}

func (c *Config) clone() Config {
	n := *c
	for _, p := range []**int{&n.SymbolCacheSize, &n.MaxScan, &n.MaxFrames} {
		if *p != nil {
			v := **p
			*p = &v
		}
	}
	return n
}

// String returns c in the configuration file format.
func (c *Config) String() string {
	out, err := yaml.Marshal(*c)
	if err != nil {
		return err.Error()
	}
	return string(out)
}

func writeDefaultConfig(f io.Writer) error {
	_, err := io.WriteString(f,
		`# Configuration file for crashwalk.

# This is the default configuration file. Available options are provided, but disabled.
# Delete the leading hash mark to enable an item.

# Sections printed in a crash report, see 'crashwalk flags'.
# report-flags: registers,cmdline,modules,stack

# addr2line compatible symbolizer, "-f -C -e <module> <address>" is appended.
# symbolizer: addr2line
# symbolizer-timeout: 5s
# symbol-cache-size: 1024

# Command started when a report asks for a debugger, {pid} is the crashed process.
# debugger-command: gdb -p {pid}

# Bytes of stack examined when the frame pointer chain is broken.
# max-scan: 8192

# Maximum number of lines in a stack trace.
# max-frames: 256

# Colored section headers: auto, always or never.
# color: auto
`)
	return err
}

// createConfigPath creates the directory structure at which all config files are saved.
func createConfigPath() error {
	path, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0700)
}

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {
	if configPath := os.Getenv("XDG_CONFIG_HOME"); configPath != "" {
		return filepath.Join(configPath, configDir, file), nil
	}

	userHomeDir := "."
	usr, err := user.Current()
	if err == nil {
		userHomeDir = usr.HomeDir
	}
	if runtime.GOOS == "linux" {
		if _, err := os.Stat(filepath.Join(userHomeDir, configDirHidden)); os.IsNotExist(err) {
			return filepath.Join(userHomeDir, ".config", configDir, file), nil
		}
	}
	return filepath.Join(userHomeDir, configDirHidden, file), nil
}
