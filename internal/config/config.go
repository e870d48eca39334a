// Package config loads the daemon's startup configuration from
// command-line flags; Load reads no database row. It also holds an
// explicit field-setter dispatch table keyed by demobank_configs column
// name (ApplyField), in place of the reflection-based config mapping
// design note §9 calls out.
package config

import (
	"fmt"

	"github.com/jessevdk/go-flags"
	"github.com/shopspring/decimal"
)

// Config is the daemon's static startup configuration, parsed from
// command-line flags the way lnd.go's own Config is (jessevdk/go-flags
// struct tags).
type Config struct {
	ListenAddr string `long:"listenaddr" description:"address the EBICS + companion HTTP server binds to" default:"0.0.0.0:5000"`
	AdminAddr  string `long:"adminaddr" description:"address the admin gRPC server binds to" default:"0.0.0.0:10009"`

	DatabaseDSN string `long:"databasedsn" description:"Postgres connection string" required:"true"`

	DemobankName string `long:"demobankname" description:"name of the demobank tenant this daemon instance serves" default:"default"`

	NexusBaseURL  string `long:"nexusbaseurl" description:"base URL of the external Nexus fiat connector"`
	NexusUsername string `long:"nexususername" description:"Nexus basic-auth username"`
	NexusPassword string `long:"nexuspassword" description:"Nexus basic-auth password"`

	EmailTanCmd string `long:"emailtancmd" description:"external command invoked to deliver an EMAIL tan, TAN on stdin"`
	SMSTanCmd   string `long:"smstancmd" description:"external command invoked to deliver an SMS tan, TAN on stdin"`

	LogFile     string `long:"logfile" description:"path to the rotating log file" default:"ebicsd.log"`
	MaxLogFiles int    `long:"maxlogfiles" description:"number of rotated log files to retain" default:"10"`

	DrainAccountLabel string `long:"drainaccountlabel" description:"bank account label the cash-out monitor drains" default:"admin"`

	RequestsPerSecond float64 `long:"requestspersecond" description:"EBICS ingress rate limit" default:"20"`
	Burst             int     `long:"burst" description:"EBICS ingress burst size" default:"40"`
}

// DemobankDefaults are the seedable fields of a demobank_configs row,
// applied by an explicit field-setter dispatch table rather than
// reflection over column names (spec.md §9 design note).
type DemobankDefaults struct {
	Name                    string
	Currency                string
	BankDebtLimit           decimal.Decimal
	UsersDebtLimit          decimal.Decimal
	FiatCurrency            string
	SellRate                decimal.Decimal
	SellFee                 decimal.Decimal
	AdvanceWatermarkOnError bool
}

// fieldSetter applies one named column value onto a DemobankDefaults.
// Building this table once, instead of reflecting over struct tags at
// every row scan, is what design note §9 asks for.
type fieldSetter func(d *DemobankDefaults, value string) error

var demobankFieldSetters = map[string]fieldSetter{
	"name":                       func(d *DemobankDefaults, v string) error { d.Name = v; return nil },
	"currency":                   func(d *DemobankDefaults, v string) error { d.Currency = v; return nil },
	"fiat_currency":              func(d *DemobankDefaults, v string) error { d.FiatCurrency = v; return nil },
	"bank_debt_limit":            setDecimal(func(d *DemobankDefaults) *decimal.Decimal { return &d.BankDebtLimit }),
	"users_debt_limit":           setDecimal(func(d *DemobankDefaults) *decimal.Decimal { return &d.UsersDebtLimit }),
	"sell_rate":                  setDecimal(func(d *DemobankDefaults) *decimal.Decimal { return &d.SellRate }),
	"sell_fee":                   setDecimal(func(d *DemobankDefaults) *decimal.Decimal { return &d.SellFee }),
	"advance_watermark_on_error": func(d *DemobankDefaults, v string) error {
		d.AdvanceWatermarkOnError = v == "true" || v == "1" || v == "t"
		return nil
	},
}

func setDecimal(field func(*DemobankDefaults) *decimal.Decimal) fieldSetter {
	return func(d *DemobankDefaults, v string) error {
		parsed, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("config: parse decimal field: %w", err)
		}
		*field(d) = parsed
		return nil
	}
}

// ApplyField sets one named field on d, looked up in the explicit
// dispatch table. Unknown field names are a no-op: forward-compatible
// with columns this version of the daemon doesn't know about yet.
func ApplyField(d *DemobankDefaults, name, value string) error {
	setter, ok := demobankFieldSetters[name]
	if !ok {
		return nil
	}
	return setter(d, value)
}

// Load parses process arguments into a Config.
func Load(args []string) (*Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}
	return &cfg, nil
}
