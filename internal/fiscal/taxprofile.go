package fiscal

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// TaxCodes are the jurisdiction specific codes of one invoice item.
type TaxCodes struct {
	NCM        string `yaml:"ncm" json:"ncm"`
	CFOP       string `yaml:"cfop" json:"cfop"`
	Unit       string `yaml:"unidade" json:"unidade"`
	ICMSOrigin string `yaml:"icms_origem" json:"icms_origem"`
	CSOSN      string `yaml:"icms_csosn" json:"icms_csosn"`
	PISCST     string `yaml:"pis_cst" json:"pis_cst"`
	COFINSCST  string `yaml:"cofins_cst" json:"cofins_cst"`
}

// TaxProfile maps product codes to their tax codes. Products without an
// entry, and empty fields of an entry, use Default.
type TaxProfile struct {
	Default  TaxCodes            `yaml:"default"`
	Products map[string]TaxCodes `yaml:"products"`
}

// DefaultTaxCodes are used for a Simples Nacional retailer selling goods
// within its own state.
var DefaultTaxCodes = TaxCodes{
	NCM:        "22021000",
	CFOP:       "5102",
	Unit:       "UN",
	ICMSOrigin: "0",
	CSOSN:      "102",
	PISCST:     "07",
	COFINSCST:  "07",
}

var (
	ncmPattern  = regexp.MustCompile(`^\d{8}$`)
	cfopPattern = regexp.MustCompile(`^[1-7]\d{3}$`)
)

// DefaultTaxProfile returns a profile applying DefaultTaxCodes to every product.
func DefaultTaxProfile() *TaxProfile {
	return &TaxProfile{Default: DefaultTaxCodes, Products: map[string]TaxCodes{}}
}

// LoadTaxProfile reads a YAML profile. An empty path yields DefaultTaxProfile.
//
//	default:
//	  cfop: "5102"
//	products:
//	  "7891000100103":
//	    ncm: "19059090"
func LoadTaxProfile(path string) (*TaxProfile, error) {
	if path == "" {
		return DefaultTaxProfile(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tax profile: %w", err)
	}

	var profile TaxProfile
	if err := yaml.Unmarshal(raw, &profile); err != nil {
		return nil, fmt.Errorf("parse tax profile %s: %w", path, err)
	}

	profile.Default = merge(profile.Default, DefaultTaxCodes)
	if profile.Products == nil {
		profile.Products = map[string]TaxCodes{}
	}

	if err := profile.Default.validate(); err != nil {
		return nil, fmt.Errorf("tax profile default: %w", err)
	}
	for code, codes := range profile.Products {
		if err := merge(codes, profile.Default).validate(); err != nil {
			return nil, fmt.Errorf("tax profile product %s: %w", code, err)
		}
	}
	return &profile, nil
}

// For returns the tax codes of a product.
func (p *TaxProfile) For(productCode string) TaxCodes {
	if override, ok := p.Products[productCode]; ok {
		return merge(override, p.Default)
	}
	return p.Default
}

func (c TaxCodes) validate() error {
	if !ncmPattern.MatchString(c.NCM) {
		return fmt.Errorf("ncm %q must have 8 digits", c.NCM)
	}
	if !cfopPattern.MatchString(c.CFOP) {
		return fmt.Errorf("cfop %q must have 4 digits", c.CFOP)
	}
	return nil
}

func merge(c, fallback TaxCodes) TaxCodes {
	pick := func(v, def string) string {
		if v == "" {
			return def
		}
		return v
	}
	return TaxCodes{
		NCM:        pick(c.NCM, fallback.NCM),
		CFOP:       pick(c.CFOP, fallback.CFOP),
		Unit:       pick(c.Unit, fallback.Unit),
		ICMSOrigin: pick(c.ICMSOrigin, fallback.ICMSOrigin),
		CSOSN:      pick(c.CSOSN, fallback.CSOSN),
		PISCST:     pick(c.PISCST, fallback.PISCST),
		COFINSCST:  pick(c.COFINSCST, fallback.COFINSCST),
	}
}
