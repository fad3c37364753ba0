// Package config loads the logger's YAML configuration from a single file or
// from a directory whose *.yaml/*.yml files are merged in name order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"vcl/cabrillo"
	"vcl/contest"
	"vcl/gridstore"
	"vcl/locator"
	"vcl/logbook"
	"vcl/publish"
	"vcl/qso"
	"vcl/wsjtx"
)

// EnvPath overrides DefaultPath in the command.
const (
	EnvPath     = "VCL_CONFIG_PATH"
	DefaultPath = "data/config"
)

// Config is the complete logger configuration.
type Config struct {
	Station   StationConfig   `yaml:"station"`
	Contest   string          `yaml:"contest"`
	Logbook   LogbookConfig   `yaml:"logbook"`
	WSJTX     WSJTXConfig     `yaml:"wsjtx"`
	Logging   LoggingConfig   `yaml:"logging"`
	Journal   JournalConfig   `yaml:"journal"`
	GridStore GridStoreConfig `yaml:"gridstore"`
	CTY       CTYConfig       `yaml:"cty"`
	MQTT      MQTTConfig      `yaml:"mqtt"`

	// LoadedFrom is the file or directory Load read.
	LoadedFrom string `yaml:"-"`
}

// StationConfig describes the operator, as printed in the Cabrillo header.
type StationConfig struct {
	Callsign      string `yaml:"callsign"`
	Grid          string `yaml:"grid"`
	Location      string `yaml:"location"`
	Name          string `yaml:"name"`
	Address       string `yaml:"address"`
	City          string `yaml:"city"`
	StateProvince string `yaml:"state_province"`
	PostalCode    string `yaml:"postal_code"`
	Country       string `yaml:"country"`
	Email         string `yaml:"email"`

	Categories CategoryConfig `yaml:"categories"`
}

// CategoryConfig holds the Cabrillo CATEGORY-* values.
type CategoryConfig struct {
	Assisted    string `yaml:"assisted"`
	Band        string `yaml:"band"`
	Mode        string `yaml:"mode"`
	Operator    string `yaml:"operator"`
	Power       string `yaml:"power"`
	Station     string `yaml:"station"`
	Transmitter string `yaml:"transmitter"`
}

// LogbookConfig locates the working CSV log.
type LogbookConfig struct {
	Path string `yaml:"path"`
	Sort string `yaml:"sort"`
}

// WSJTXConfig controls status ingest.
type WSJTXConfig struct {
	Enabled             bool           `yaml:"enabled"`
	PollIntervalMS      int            `yaml:"poll_interval_ms"`
	ReplayWindowSeconds int            `yaml:"replay_window_seconds"`
	Sources             []SourceConfig `yaml:"sources"`
}

// SourceConfig is one UDP listener.
type SourceConfig struct {
	Name    string `yaml:"name"`
	Listen  string `yaml:"listen"`
	Enabled *bool  `yaml:"enabled"`
}

// IsEnabled treats a missing flag as enabled.
func (s SourceConfig) IsEnabled() bool { return s.Enabled == nil || *s.Enabled }

// LoggingConfig controls the daily log files next to console output.
type LoggingConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
	// WarningIntervalSeconds throttles repeated ingest warnings; 0 logs all.
	WarningIntervalSeconds int `yaml:"warning_interval_seconds"`
}

// JournalConfig locates the SQLite ingest journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// GridStoreConfig controls the Pebble grid hint store.
type GridStoreConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	CacheSizeMB   int    `yaml:"cache_size_mb"`
	RetentionDays int    `yaml:"retention_days"`
}

// CTYConfig locates cty.plist. URL, when set, is where "vcl cty -update"
// refreshes it from.
type CTYConfig struct {
	Enabled        bool   `yaml:"enabled"`
	File           string `yaml:"file"`
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// MQTTConfig controls score publication.
type MQTTConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Broker         string `yaml:"broker"`
	Port           int    `yaml:"port"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	TopicPrefix    string `yaml:"topic_prefix"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Purpose: Load configuration from a YAML file or a directory of YAML files.
// Key aspects: Directory files merge key-by-key in lexical order; defaults
// fill unset keys; Validate runs last.
// Upstream: cmd/vcl startup.
// Downstream: yaml.v3, applyDefaults, Validate.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	var files []string
	if info.IsDir() {
		files, err = yamlFiles(path)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("config: no YAML files in %s", path)
		}
	} else {
		files = []string{path}
	}

	merged := map[string]any{}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", f, err)
		}
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", f, err)
		}
		mergeMaps(merged, doc)
	}
	cfg, err := decode(merged)
	if err != nil {
		return nil, err
	}
	cfg.LoadedFrom = path
	return cfg, nil
}

// Parse decodes a single YAML document, applying defaults and validation.
func Parse(data []byte) (*Config, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	return decode(doc)
}

func decode(raw map[string]any) (*Config, error) {
	if raw == nil {
		raw = map[string]any{}
	}
	// Re-encode the merged tree so yaml.v3 does the typed decoding.
	data, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("config: re-encode: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.applyDefaults(raw)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func yamlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("config: read dir %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// mergeMaps copies src into dst. Nested maps merge; anything else replaces.
func mergeMaps(dst, src map[string]any) {
	for k, v := range src {
		if sm, ok := v.(map[string]any); ok {
			if dm, ok := dst[k].(map[string]any); ok {
				mergeMaps(dm, sm)
				continue
			}
		}
		dst[k] = v
	}
}

func hasKey(raw map[string]any, path ...string) bool {
	cur := raw
	for i, p := range path {
		v, ok := cur[p]
		if !ok {
			return false
		}
		if i == len(path)-1 {
			return true
		}
		if cur, ok = v.(map[string]any); !ok {
			return false
		}
	}
	return false
}

func (c *Config) applyDefaults(raw map[string]any) {
	c.Station.Callsign = qso.NormalizeCall(c.Station.Callsign)
	c.Station.Grid = locator.Normalize(c.Station.Grid)
	if c.Logbook.Path == "" {
		c.Logbook.Path = "data/logs/contest.csv"
	}
	if c.Logbook.Sort == "" {
		c.Logbook.Sort = string(logbook.ByDateTime)
	}
	if c.WSJTX.PollIntervalMS <= 0 {
		c.WSJTX.PollIntervalMS = int(wsjtx.DefaultPollInterval / time.Millisecond)
	}
	if !hasKey(raw, "wsjtx", "replay_window_seconds") {
		c.WSJTX.ReplayWindowSeconds = 30
	}
	if len(c.WSJTX.Sources) == 0 {
		c.WSJTX.Sources = []SourceConfig{{Name: "wsjtx", Listen: "127.0.0.1:2237"}}
	}
	for i := range c.WSJTX.Sources {
		if c.WSJTX.Sources[i].Name == "" {
			c.WSJTX.Sources[i].Name = c.WSJTX.Sources[i].Listen
		}
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = "data/logs/app"
	}
	if !hasKey(raw, "logging", "retention_days") {
		c.Logging.RetentionDays = 7
	}
	if !hasKey(raw, "logging", "warning_interval_seconds") {
		c.Logging.WarningIntervalSeconds = 60
	}
	if c.Journal.Path == "" {
		c.Journal.Path = "data/journal/ingest.db"
	}
	if c.GridStore.Path == "" {
		c.GridStore.Path = "data/gridstore"
	}
	if c.CTY.File == "" {
		c.CTY.File = "data/cty/cty.plist"
	}
	if c.CTY.TimeoutSeconds <= 0 {
		c.CTY.TimeoutSeconds = 30
	}
	if c.MQTT.Port <= 0 {
		c.MQTT.Port = 1883
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = publish.DefaultTopicPrefix
	}
	if c.MQTT.TimeoutSeconds <= 0 {
		c.MQTT.TimeoutSeconds = 10
	}
}

// Validate rejects settings the logger cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Station.Callsign != "" {
		if err := qso.ValidateCall(c.Station.Callsign); err != nil {
			errs = append(errs, fmt.Errorf("station.callsign: %w", err))
		}
	}
	if c.Station.Grid != "" {
		if err := qso.ValidateGrid(c.Station.Grid); err != nil {
			errs = append(errs, fmt.Errorf("station.grid: %w", err))
		}
	}
	if def, err := contest.Parse(c.Contest); err != nil {
		errs = append(errs, fmt.Errorf("contest: %w", err))
	} else if def.IsDistanceBased() && c.Station.Grid == "" {
		errs = append(errs, fmt.Errorf("station.grid is required for %s", def.Name))
	}
	if _, err := logbook.ParseSortKey(c.Logbook.Sort); err != nil {
		errs = append(errs, fmt.Errorf("logbook.sort: %w", err))
	}
	if c.WSJTX.ReplayWindowSeconds < 0 {
		errs = append(errs, errors.New("wsjtx.replay_window_seconds must be >= 0"))
	}
	seen := make(map[string]bool)
	for i, s := range c.WSJTX.Sources {
		if strings.TrimSpace(s.Listen) == "" {
			errs = append(errs, fmt.Errorf("wsjtx.sources[%d].listen is empty", i))
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("wsjtx.sources[%d]: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = true
	}
	if c.Logging.RetentionDays < 0 {
		errs = append(errs, errors.New("logging.retention_days must be >= 0"))
	}
	if c.Logging.WarningIntervalSeconds < 0 {
		errs = append(errs, errors.New("logging.warning_interval_seconds must be >= 0"))
	}
	if c.GridStore.CacheSizeMB < 0 || c.GridStore.RetentionDays < 0 {
		errs = append(errs, errors.New("gridstore: cache_size_mb and retention_days must be >= 0"))
	}
	if c.MQTT.Enabled {
		if strings.TrimSpace(c.MQTT.Broker) == "" {
			errs = append(errs, errors.New("mqtt.broker is required when mqtt is enabled"))
		}
		if c.Station.Callsign == "" {
			errs = append(errs, errors.New("station.callsign is required when mqtt is enabled"))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// ContestDefinition resolves the configured contest; empty means Unset.
func (c *Config) ContestDefinition() (contest.Definition, error) {
	return contest.Parse(c.Contest)
}

// CabrilloStation converts the station section for the Cabrillo writer.
func (s StationConfig) CabrilloStation() cabrillo.Station {
	return cabrillo.Station{
		Callsign:            s.Callsign,
		Grid:                s.Grid,
		Location:            s.Location,
		Name:                s.Name,
		Address:             s.Address,
		City:                s.City,
		StateProvince:       s.StateProvince,
		PostalCode:          s.PostalCode,
		Country:             s.Country,
		Email:               s.Email,
		CategoryAssisted:    s.Categories.Assisted,
		CategoryBand:        s.Categories.Band,
		CategoryMode:        s.Categories.Mode,
		CategoryOperator:    s.Categories.Operator,
		CategoryPower:       s.Categories.Power,
		CategoryStation:     s.Categories.Station,
		CategoryTransmitter: s.Categories.Transmitter,
	}
}

// PollInterval returns the WSJT-X poll interval.
func (w WSJTXConfig) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalMS) * time.Millisecond
}

// ReplayWindow returns how long identical payloads are suppressed.
func (w WSJTXConfig) ReplayWindow() time.Duration {
	return time.Duration(w.ReplayWindowSeconds) * time.Second
}

// WarningInterval returns the warning throttle interval.
func (l LoggingConfig) WarningInterval() time.Duration {
	return time.Duration(l.WarningIntervalSeconds) * time.Second
}

// Options converts the section to store options.
func (g GridStoreConfig) Options() gridstore.Options {
	return gridstore.Options{CacheSizeBytes: int64(g.CacheSizeMB) << 20}
}

// Retention returns how long unused hints are kept; 0 keeps them forever.
func (g GridStoreConfig) Retention() time.Duration {
	return time.Duration(g.RetentionDays) * 24 * time.Hour
}

// Timeout bounds one CTY refresh.
func (c CTYConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Options converts the section to client options.
func (m MQTTConfig) Options() publish.Options {
	return publish.Options{
		Broker:      m.Broker,
		Port:        m.Port,
		Username:    m.Username,
		Password:    m.Password,
		TopicPrefix: m.TopicPrefix,
		Timeout:     time.Duration(m.TimeoutSeconds) * time.Second,
	}
}

// Print writes a short summary of the effective settings.
func (c *Config) Print() {
	def, _ := c.ContestDefinition()
	fmt.Printf("Station: %s %s\n", orDash(c.Station.Callsign), orDash(c.Station.Grid))
	fmt.Printf("Contest: %s\n", def.Name)
	fmt.Printf("Logbook: %s (sort=%s)\n", c.Logbook.Path, c.Logbook.Sort)
	if c.WSJTX.Enabled {
		for _, s := range c.WSJTX.Sources {
			state := "enabled"
			if !s.IsEnabled() {
				state = "disabled"
			}
			fmt.Printf("WSJT-X source %s: %s (%s)\n", s.Name, s.Listen, state)
		}
	}
	if c.Journal.Enabled {
		fmt.Printf("Journal: %s\n", c.Journal.Path)
	}
	if c.GridStore.Enabled {
		fmt.Printf("Grid hints: %s\n", c.GridStore.Path)
	}
	if c.CTY.Enabled {
		fmt.Printf("CTY: %s\n", c.CTY.File)
	}
	if c.MQTT.Enabled {
		fmt.Printf("MQTT: %s:%d (prefix %s)\n", c.MQTT.Broker, c.MQTT.Port, c.MQTT.TopicPrefix)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
