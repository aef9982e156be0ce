package fiscal

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pdv_backend/internal/config"
	"pdv_backend/internal/sales"
)

// ModelNFCe is the fiscal document model of a consumer receipt.
const ModelNFCe = "65"

// Address is the emitter address as printed on the receipt.
type Address struct {
	Street           string `json:"logradouro"`
	Number           string `json:"numero"`
	District         string `json:"bairro"`
	Municipality     string `json:"municipio"`
	MunicipalityCode string `json:"codigo_municipio"`
	State            string `json:"uf"`
	PostalCode       string `json:"cep"`
}

// Emitter identifies the store issuing the receipt.
type Emitter struct {
	LegalName         string  `json:"razao_social"`
	TaxID             string  `json:"cnpj"`
	StateRegistration string  `json:"inscricao_estadual"`
	TaxRegime         int     `json:"crt"`
	Address           Address `json:"endereco"`
}

// InvoiceItem is a sale line mapped to a taxable product record.
type InvoiceItem struct {
	Number      int             `json:"numero"`
	ProductCode string          `json:"codigo"`
	Description string          `json:"descricao"`
	Quantity    decimal.Decimal `json:"quantidade"`
	UnitPrice   decimal.Decimal `json:"valor_unitario"`
	Total       decimal.Decimal `json:"valor_total"`
	TaxCodes
}

// Payment is a single payment record of the receipt.
type Payment struct {
	Method string          `json:"forma"`
	Amount decimal.Decimal `json:"valor"`
}

// SecurityCode is the CSC pair used to build the consumer QR code.
type SecurityCode struct {
	ID    string
	Token string
}

// InvoiceRequest is the normalized NFC-e request handed to a Gateway.
// Certificate and SecurityCode never serialize; gateways that need them must
// add them explicitly.
type InvoiceRequest struct {
	CorrelationID  uuid.UUID       `json:"correlation_id"`
	SaleID         int64           `json:"sale_id"`
	Model          string          `json:"modelo"`
	Series         int             `json:"serie"`
	Number         int64           `json:"numero"`
	Environment    int             `json:"ambiente"`
	IssuedAt       time.Time       `json:"data_emissao"`
	Emitter        Emitter         `json:"emitente"`
	Items          []InvoiceItem   `json:"itens"`
	Payments       []Payment       `json:"pagamentos"`
	Total          decimal.Decimal `json:"valor_total"`
	Change         decimal.Decimal `json:"troco"`
	AdditionalInfo string          `json:"informacoes_adicionais,omitempty"`

	Certificate  *Certificate `json:"-"`
	SecurityCode SecurityCode `json:"-"`
}

// BuildInvoice maps a persisted sale to an InvoiceRequest without a document
// number. Malformed emitter settings are reported as ConfigurationError.
func BuildInvoice(cfg config.Fiscal, profile *TaxProfile, sale *sales.Sale, cert *Certificate, issuedAt time.Time) (*InvoiceRequest, error) {
	if missing := cfg.Missing(); len(missing) > 0 {
		return nil, &ConfigurationError{Item: strings.Join(missing, ", "), Reason: "not set"}
	}
	if cert == nil || len(cert.Bytes()) == 0 {
		return nil, &ConfigurationError{Item: "CERTIFICATE_PATH", Reason: "certificate material is missing"}
	}

	taxID := digits(cfg.TaxID)
	if len(taxID) != 14 {
		return nil, &ConfigurationError{Item: "EMIT_CNPJ", Reason: "must have 14 digits"}
	}
	postalCode := digits(cfg.PostalCode)
	if len(postalCode) != 8 {
		return nil, &ConfigurationError{Item: "EMIT_CEP", Reason: "must have 8 digits"}
	}
	municipalityCode := digits(cfg.MunicipalityCode)
	if len(municipalityCode) != 7 {
		return nil, &ConfigurationError{Item: "EMIT_MUN_CODE", Reason: "must be the 7 digit IBGE code"}
	}
	if len(cfg.State) != 2 {
		return nil, &ConfigurationError{Item: "EMIT_UF", Reason: "must be a 2 letter state code"}
	}
	if len(sale.Items) == 0 {
		return nil, fmt.Errorf("sale %d has no items", sale.ID)
	}
	if profile == nil {
		profile = DefaultTaxProfile()
	}

	items := make([]InvoiceItem, 0, len(sale.Items))
	for i, line := range sale.Items {
		items = append(items, InvoiceItem{
			Number:      i + 1,
			ProductCode: line.ProductCode,
			Description: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Total:       line.Total(),
			TaxCodes:    profile.For(line.ProductCode),
		})
	}

	method := sale.PaymentMethod
	if method == "" {
		method = sales.DefaultPaymentMethod
	}

	return &InvoiceRequest{
		CorrelationID: uuid.New(),
		SaleID:        sale.ID,
		Model:         ModelNFCe,
		Series:        cfg.Series,
		Environment:   cfg.Environment,
		IssuedAt:      issuedAt,
		Emitter: Emitter{
			LegalName:         cfg.LegalName,
			TaxID:             taxID,
			StateRegistration: cfg.StateRegistration,
			TaxRegime:         cfg.TaxRegime,
			Address: Address{
				Street:           cfg.Street,
				Number:           cfg.Number,
				District:         cfg.District,
				Municipality:     cfg.Municipality,
				MunicipalityCode: municipalityCode,
				State:            cfg.State,
				PostalCode:       postalCode,
			},
		},
		Items:          items,
		Payments:       []Payment{{Method: method, Amount: sale.AmountTendered}},
		Total:          sale.Total,
		Change:         sale.Change,
		AdditionalInfo: cfg.AdditionalInfo,
		Certificate:    cert,
		SecurityCode:   SecurityCode{ID: cfg.CSCID, Token: cfg.CSCToken},
	}, nil
}

func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}
