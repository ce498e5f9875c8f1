package settings

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var config Config

// Entity names in export order. The keys of ExportConfig.Entities use these names.
var EntityNames = []string{
	"schaechte",
	"speicher",
	"speicherkennlinien",
	"auslaesse",
	"pumpen",
	"wehre",
	"haltungen",
	"bodenklassen",
	"abflussparameter",
	"regenschreiber",
	"flaechen",
	"einleit",
	"aussengebiete",
}

type Config struct {
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	QKan    QKanConfig    `mapstructure:"qkan" yaml:"qkan"`
	HE      HEConfig      `mapstructure:"he" yaml:"he"`
	Export  ExportConfig  `mapstructure:"export" yaml:"export"`
	Import  ImportConfig  `mapstructure:"import" yaml:"import"`
	Results ResultsConfig `mapstructure:"results" yaml:"results"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
}

type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

// QKanConfig describes the editing database. Dialect is one of spatialite,
// postgis or wkb.
type QKanConfig struct {
	Dialect          string `mapstructure:"dialect" yaml:"dialect"`
	Path             string `mapstructure:"path" yaml:"path"`
	ConnectionString string `mapstructure:"connection_string" yaml:"connection_string"`
	Extension        string `mapstructure:"extension" yaml:"extension"`
	EPSG             int    `mapstructure:"epsg" yaml:"epsg"`
}

// HEConfig describes the Hystem-Extran database. Driver is firebirdsql in
// production; sqlite3 is accepted for file copies of the schema. A Firebird
// database given by Path is opened on Server (user:password@host[:port]).
type HEConfig struct {
	Driver           string `mapstructure:"driver" yaml:"driver"`
	Server           string `mapstructure:"server" yaml:"server"`
	ConnectionString string `mapstructure:"connection_string" yaml:"connection_string"`
	Template         string `mapstructure:"template" yaml:"template"`
	Path             string `mapstructure:"path" yaml:"path"`
}

type EntityFlags struct {
	Export  bool `mapstructure:"export" yaml:"export"`
	Modify  bool `mapstructure:"modify" yaml:"modify"`
	Combine bool `mapstructure:"combine" yaml:"combine"`
}

type ExportConfig struct {
	SearchRadius       float64                `mapstructure:"search_radius" yaml:"search_radius"`
	MinArea            float64                `mapstructure:"min_area" yaml:"min_area"`
	Intersect          bool                   `mapstructure:"intersect" yaml:"intersect"`
	DeriveAreaDefaults bool                   `mapstructure:"derive_area_defaults" yaml:"derive_area_defaults"`
	Autocorrect        bool                   `mapstructure:"autocorrect" yaml:"autocorrect"`
	FixReferences      bool                   `mapstructure:"fix_references" yaml:"fix_references"`
	Subareas           []string               `mapstructure:"subareas" yaml:"subareas"`
	Entities           map[string]EntityFlags `mapstructure:"entities" yaml:"entities"`
}

// Flags returns the flags of the named entity. Unknown names are disabled.
func (e ExportConfig) Flags(name string) EntityFlags {
	return e.Entities[name]
}

type ImportConfig struct {
	ProjectTemplate string `mapstructure:"project_template" yaml:"project_template"`
	ProjectFile     string `mapstructure:"project_file" yaml:"project_file"`
}

type ResultsConfig struct {
	ArchiveDir string `mapstructure:"archive_dir" yaml:"archive_dir"`
}

type ServerConfig struct {
	Port                  int        `mapstructure:"port" yaml:"port"`
	Timeout               int        `mapstructure:"timeout" yaml:"timeout"`
	MaxConcurrentRequests int        `mapstructure:"max_concurrent_requests" yaml:"max_concurrent_requests"`
	CORS                  CORSConfig `mapstructure:"cors" yaml:"cors"`
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins" yaml:"allow_origins"`
	AllowMethods []string `mapstructure:"allow_methods" yaml:"allow_methods"`
	AllowHeaders []string `mapstructure:"allow_headers" yaml:"allow_headers"`
}

// InitializeConfig loads the configuration from the YAML file at path.
// An empty path loads defaults and environment overrides only.
func InitializeConfig(path string) error {
	c, err := loadConfig(path)
	if err != nil {
		return err
	}

	config = c
	return nil
}

// loadConfig reads the YAML file, applies QKANHE_ environment overrides and
// fills every missing key with its default.
func loadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	v.SetEnvPrefix("QKANHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := c.validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.max_size_mb", 32)
	v.SetDefault("log.max_backups", 3)

	v.SetDefault("qkan.dialect", "spatialite")
	v.SetDefault("qkan.extension", "mod_spatialite")
	v.SetDefault("qkan.epsg", 25832)

	v.SetDefault("he.driver", "firebirdsql")
	v.SetDefault("he.server", "SYSDBA:masterkey@localhost")

	v.SetDefault("export.search_radius", 0.1)
	v.SetDefault("export.min_area", 0.5)
	v.SetDefault("export.intersect", true)
	v.SetDefault("export.derive_area_defaults", false)
	v.SetDefault("export.autocorrect", true)
	v.SetDefault("export.fix_references", false)
	v.SetDefault("export.subareas", []string{})

	for _, name := range EntityNames {
		v.SetDefault("export.entities."+name+".export", true)
		v.SetDefault("export.entities."+name+".modify", false)
		v.SetDefault("export.entities."+name+".combine", false)
	}

	v.SetDefault("results.archive_dir", "")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout", 600)
	v.SetDefault("server.max_concurrent_requests", 10)
	v.SetDefault("server.cors.allow_origins", []string{"*"})
	v.SetDefault("server.cors.allow_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("server.cors.allow_headers", []string{"*"})
}

func (c Config) validate() error {
	switch c.QKan.Dialect {
	case "spatialite", "postgis", "wkb":
	default:
		return fmt.Errorf("qkan.dialect: unknown dialect %q", c.QKan.Dialect)
	}

	switch c.HE.Driver {
	case "firebirdsql", "sqlite3":
	default:
		return fmt.Errorf("he.driver: unknown driver %q", c.HE.Driver)
	}

	if c.HE.Template != "" && c.HE.Path == "" {
		return fmt.Errorf("he.template needs he.path as the copy destination")
	}

	if c.Export.SearchRadius < 0 {
		return fmt.Errorf("export.search_radius must not be negative")
	}

	for name := range c.Export.Entities {
		if !knownEntity(name) {
			return fmt.Errorf("export.entities: unknown entity %q", name)
		}
	}

	return nil
}

func knownEntity(name string) bool {
	for _, n := range EntityNames {
		if n == name {
			return true
		}
	}
	return false
}

// GetConfig returns the current configuration.
func GetConfig() Config {
	return config
}

// Render returns the configuration as YAML.
func Render(c Config) ([]byte, error) {
	return yaml.Marshal(c)
}
