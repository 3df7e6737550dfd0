// Package database provides relational store options for docmind.
package database

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/docmind/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Options defines configuration options for the relational store.
type Options struct {
	// Driver selects the gorm dialector (sqlite|postgres|mysql).
	Driver string `json:"driver" mapstructure:"driver"`
	// Path is the sqlite database file.
	Path                  string        `json:"path" mapstructure:"path"`
	Host                  string        `json:"host" mapstructure:"host"`
	Port                  int           `json:"port" mapstructure:"port"`
	Username              string        `json:"username" mapstructure:"username"`
	Password              string        `json:"-" mapstructure:"password"`
	Database              string        `json:"database" mapstructure:"database"`
	SSLMode               string        `json:"ssl-mode" mapstructure:"ssl-mode"`
	MaxIdleConnections    int           `json:"max-idle-connections" mapstructure:"max-idle-connections"`
	MaxOpenConnections    int           `json:"max-open-connections" mapstructure:"max-open-connections"`
	MaxConnectionLifeTime time.Duration `json:"max-connection-life-time" mapstructure:"max-connection-life-time"`
	// LogLevel maps to gorm logger levels: 1 silent, 2 error, 3 warn, 4 info.
	LogLevel int `json:"log-level" mapstructure:"log-level"`
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		Driver:                DriverSQLite,
		Path:                  "docmind.db",
		Host:                  "127.0.0.1",
		MaxIdleConnections:    10,
		MaxOpenConnections:    50,
		MaxConnectionLifeTime: 10 * time.Minute,
		LogLevel:              1,
	}
}

// AddFlags adds flags for database options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "database."
	fs.StringVar(&o.Driver, p+"driver", o.Driver, "Relational store driver (sqlite|postgres|mysql).")
	fs.StringVar(&o.Path, p+"path", o.Path, "SQLite database file.")
	fs.StringVar(&o.Host, p+"host", o.Host, "Database host.")
	fs.IntVar(&o.Port, p+"port", o.Port, "Database port (0 uses the driver default).")
	fs.StringVar(&o.Username, p+"username", o.Username, "Database username.")
	fs.StringVar(&o.Password, p+"password", o.Password, "Database password.")
	fs.StringVar(&o.Database, p+"database", o.Database, "Database name.")
	fs.StringVar(&o.SSLMode, p+"ssl-mode", o.SSLMode, "PostgreSQL SSL mode.")
	fs.IntVar(&o.MaxIdleConnections, p+"max-idle-connections", o.MaxIdleConnections, "Maximum idle connections.")
	fs.IntVar(&o.MaxOpenConnections, p+"max-open-connections", o.MaxOpenConnections, "Maximum open connections.")
	fs.DurationVar(&o.MaxConnectionLifeTime, p+"max-connection-life-time", o.MaxConnectionLifeTime, "Maximum connection lifetime.")
	fs.IntVar(&o.LogLevel, p+"log-level", o.LogLevel, "gorm log level (1 silent .. 4 info).")
}

// Validate checks if the options are valid.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	switch o.Driver {
	case DriverSQLite:
		if o.Path == "" {
			errs = append(errs, fmt.Errorf("database.path is required for sqlite"))
		}
	case DriverPostgres, DriverMySQL:
		if o.Database == "" {
			errs = append(errs, fmt.Errorf("database.database is required for %s", o.Driver))
		}
		if o.Host == "" {
			errs = append(errs, fmt.Errorf("database.host is required for %s", o.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver %q", o.Driver))
	}
	return errs
}

// Complete fills driver dependent defaults.
func (o *Options) Complete() error {
	if o.Port == 0 {
		switch o.Driver {
		case DriverPostgres:
			o.Port = 5432
		case DriverMySQL:
			o.Port = 3306
		}
	}
	if o.Driver == DriverPostgres && o.SSLMode == "" {
		o.SSLMode = "disable"
	}
	return nil
}

// DSN builds the driver specific data source name.
func (o *Options) DSN() string {
	switch o.Driver {
	case DriverPostgres:
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			o.Host, o.Port, o.Username, quotePostgres(o.Password), o.Database, o.SSLMode)
	case DriverMySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			o.Username, url.QueryEscape(o.Password), o.Host, o.Port, o.Database)
	default:
		return o.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
}

func quotePostgres(v string) string {
	if v == "" {
		return "''"
	}
	if strings.ContainsAny(v, " '\\") {
		return "'" + strings.ReplaceAll(strings.ReplaceAll(v, `\`, `\\`), "'", `\'`) + "'"
	}
	return v
}
