package pricing

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ShippingRates is a flat two-tier table: one fee for the metro region and
// one for everywhere else.
type ShippingRates struct {
	MetroFee    decimal.Decimal
	DefaultFee  decimal.Decimal
	MetroCities []string
}

var defaultMetroCities = []string{
	"hcm",
	"ho chi minh",
	"tp hcm",
	"tp.hcm",
	"ho chi minh city",
	"saigon",
	"sai gon",
}

func DefaultShippingRates() ShippingRates {
	return ShippingRates{
		MetroFee:    decimal.NewFromInt(25000),
		DefaultFee:  decimal.NewFromInt(35000),
		MetroCities: defaultMetroCities,
	}
}

type ratesFile struct {
	MetroFee    string   `yaml:"metro_fee"`
	DefaultFee  string   `yaml:"default_fee"`
	MetroCities []string `yaml:"metro_cities"`
}

// LoadShippingRates reads a YAML rate table. Keys missing from the file keep
// their default value; an empty path returns the defaults.
func LoadShippingRates(path string) (ShippingRates, error) {
	rates := DefaultShippingRates()
	if path == "" {
		return rates, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return rates, fmt.Errorf("read shipping rates: %w", err)
	}
	return ParseShippingRates(data)
}

func ParseShippingRates(data []byte) (ShippingRates, error) {
	rates := DefaultShippingRates()

	var f ratesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return rates, fmt.Errorf("parse shipping rates: %w", err)
	}

	if f.MetroFee != "" {
		fee, err := decimal.NewFromString(f.MetroFee)
		if err != nil {
			return rates, fmt.Errorf("metro_fee: %w", err)
		}
		rates.MetroFee = fee
	}
	if f.DefaultFee != "" {
		fee, err := decimal.NewFromString(f.DefaultFee)
		if err != nil {
			return rates, fmt.Errorf("default_fee: %w", err)
		}
		rates.DefaultFee = fee
	}
	if rates.MetroFee.IsNegative() || rates.DefaultFee.IsNegative() {
		return rates, fmt.Errorf("shipping fees must not be negative")
	}
	if len(f.MetroCities) > 0 {
		rates.MetroCities = f.MetroCities
	}

	return rates, nil
}

// Fee is a pure function of the destination city.
func (r ShippingRates) Fee(city string) decimal.Decimal {
	key := strings.ToLower(strings.TrimSpace(city))
	for _, metro := range r.MetroCities {
		if key == strings.ToLower(metro) {
			return r.MetroFee
		}
	}
	return r.DefaultFee
}
