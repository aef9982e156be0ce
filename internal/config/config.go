package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"

	GatewayRemote = "remote"
	GatewayFake   = "fake"
)

// Config holds application configuration values.
type Config struct {
	HTTPPort    string
	Env         string
	LogLevel    string
	CORSOrigins []string
	Database    Database
	Fiscal      Fiscal
}

// Database selects the SQL driver and its data source.
type Database struct {
	Driver string
	DSN    string
}

// Fiscal carries the NFC-e emitter identity and the gateway settings.
type Fiscal struct {
	LegalName         string
	TaxID             string
	State             string
	StateRegistration string
	Street            string
	Number            string
	District          string
	Municipality      string
	PostalCode        string
	MunicipalityCode  string
	TaxRegime         int

	CertificatePath     string
	CertificatePassword string
	CSCID               string
	CSCToken            string

	Environment    int
	Series         int
	AdditionalInfo string
	TaxProfilePath string
	Timeout        time.Duration
	StaleAfter     time.Duration

	Gateway      string
	GatewayURL   string
	GatewayToken string
	FakeOutcome  string
}

// Requirement pairs an environment variable with its loaded value.
type Requirement struct {
	Name  string
	Value string
}

// Requirements lists the settings an emission attempt cannot run without, in
// the order they are reported.
func (f Fiscal) Requirements() []Requirement {
	return []Requirement{
		{"EMIT_RAZAO_SOCIAL", f.LegalName},
		{"EMIT_CNPJ", f.TaxID},
		{"EMIT_UF", f.State},
		{"EMIT_IE", f.StateRegistration},
		{"EMIT_LOGRADOURO", f.Street},
		{"EMIT_NUMERO", f.Number},
		{"EMIT_BAIRRO", f.District},
		{"EMIT_MUNICIPIO", f.Municipality},
		{"EMIT_CEP", f.PostalCode},
		{"EMIT_MUN_CODE", f.MunicipalityCode},
		{"CERTIFICATE_PASSWORD", f.CertificatePassword},
		{"CSC_ID", f.CSCID},
		{"CSC_TOKEN", f.CSCToken},
	}
}

// Missing returns the names of the required fiscal settings that are empty.
func (f Fiscal) Missing() []string {
	var missing []string
	for _, r := range f.Requirements() {
		if strings.TrimSpace(r.Value) == "" {
			missing = append(missing, r.Name)
		}
	}
	return missing
}

// Load reads configuration from the environment, after merging an optional
// .env file. Only malformed values are errors; missing fiscal settings are
// reported per emission attempt.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPPort:    getEnv("PORT", "3001"),
		Env:         getEnv("APP_ENV", "production"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}
	if _, err := strconv.Atoi(cfg.HTTPPort); err != nil {
		return Config{}, fmt.Errorf("invalid PORT value %q", cfg.HTTPPort)
	}

	db, err := loadDatabase()
	if err != nil {
		return Config{}, err
	}
	cfg.Database = db

	fiscal, err := loadFiscal()
	if err != nil {
		return Config{}, err
	}
	cfg.Fiscal = fiscal

	return cfg, nil
}

func loadDatabase() (Database, error) {
	url := os.Getenv("DATABASE_URL")
	driver := os.Getenv("DB_DRIVER")
	if driver == "" {
		if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
			driver = DriverPostgres
		} else {
			driver = DriverSQLite
		}
	}

	switch driver {
	case DriverPostgres:
		if url == "" {
			return Database{}, fmt.Errorf("DATABASE_URL is required for driver %s", driver)
		}
		return Database{Driver: driver, DSN: url}, nil
	case DriverSQLite:
		path := getEnv("DATABASE_PATH", "pdv.db")
		return Database{Driver: driver, DSN: path}, nil
	default:
		return Database{}, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
}

func loadFiscal() (Fiscal, error) {
	f := Fiscal{
		LegalName:           os.Getenv("EMIT_RAZAO_SOCIAL"),
		TaxID:               os.Getenv("EMIT_CNPJ"),
		State:               strings.ToUpper(os.Getenv("EMIT_UF")),
		StateRegistration:   os.Getenv("EMIT_IE"),
		Street:              os.Getenv("EMIT_LOGRADOURO"),
		Number:              os.Getenv("EMIT_NUMERO"),
		District:            os.Getenv("EMIT_BAIRRO"),
		Municipality:        os.Getenv("EMIT_MUNICIPIO"),
		PostalCode:          os.Getenv("EMIT_CEP"),
		MunicipalityCode:    os.Getenv("EMIT_MUN_CODE"),
		CertificatePath:     getEnv("CERTIFICATE_PATH", "/etc/secrets/certificado.pfx"),
		CertificatePassword: os.Getenv("CERTIFICATE_PASSWORD"),
		CSCID:               os.Getenv("CSC_ID"),
		CSCToken:            os.Getenv("CSC_TOKEN"),
		AdditionalInfo:      getEnv("NFCE_INFO_ADICIONAL", "DOCUMENTO EMITIDO POR ME OU EPP OPTANTE PELO SIMPLES NACIONAL."),
		TaxProfilePath:      os.Getenv("NFCE_TAX_PROFILE"),
		GatewayURL:          os.Getenv("FISCAL_GATEWAY_URL"),
		GatewayToken:        os.Getenv("FISCAL_GATEWAY_TOKEN"),
		FakeOutcome:         getEnv("FISCAL_FAKE_OUTCOME", "authorize"),
	}

	var err error
	if f.TaxRegime, err = getInt("EMIT_CRT", 1); err != nil {
		return Fiscal{}, err
	}
	if f.Environment, err = getInt("NFCE_AMBIENTE", 2); err != nil {
		return Fiscal{}, err
	}
	if f.Environment != 1 && f.Environment != 2 {
		return Fiscal{}, fmt.Errorf("NFCE_AMBIENTE must be 1 (production) or 2 (homologation), got %d", f.Environment)
	}
	if f.Series, err = getInt("NFCE_SERIE", 1); err != nil {
		return Fiscal{}, err
	}
	if f.Timeout, err = getDuration("NFCE_TIMEOUT", 30*time.Second); err != nil {
		return Fiscal{}, err
	}
	if f.StaleAfter, err = getDuration("NFCE_STALE_AFTER", 2*time.Minute); err != nil {
		return Fiscal{}, err
	}
	if f.StaleAfter <= f.Timeout {
		return Fiscal{}, fmt.Errorf("NFCE_STALE_AFTER (%s) must be longer than NFCE_TIMEOUT (%s)", f.StaleAfter, f.Timeout)
	}

	f.Gateway = os.Getenv("FISCAL_GATEWAY")
	if f.Gateway == "" {
		if f.GatewayURL != "" {
			f.Gateway = GatewayRemote
		} else {
			f.Gateway = GatewayFake
		}
	}
	switch f.Gateway {
	case GatewayRemote:
		if f.GatewayURL == "" {
			return Fiscal{}, fmt.Errorf("FISCAL_GATEWAY_URL is required for the remote gateway")
		}
	case GatewayFake:
	default:
		return Fiscal{}, fmt.Errorf("unsupported FISCAL_GATEWAY %q", f.Gateway)
	}

	return f, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q", key, v)
	}
	return n, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %v", key, v, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
