package rates

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	payo "github.com/payoapp/payo/pkg"
	"github.com/shopspring/decimal"
)

// coin IDs as used by the rate API
var coinIDs = map[string]string{
	"BTC":  "bitcoin",
	"USDC": "usd-coin",
}

// decimal places of the crypto amount per asset
var assetPlaces = map[string]int32{
	"BTC":  8,
	"USDC": 6,
}

// Service converts fiat amounts to crypto amounts using a
// CoinGecko-style price API, with hardcoded fallback rates when the
// API is unreachable. Rates are fiat units per one unit of the asset.
type Service struct {
	client   *http.Client
	apiURL   string
	fiat     string
	fallback map[string]decimal.Decimal
}

// interface guard ensures Service implements payo.RateSource
var _ payo.RateSource = &Service{}

func NewService(conf payo.Config, client *http.Client) *Service {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Service{
		client: client,
		apiURL: conf.Rates.APIURL,
		fiat:   conf.Gateway.FiatCurrency,
		fallback: map[string]decimal.Decimal{
			"BTC":  decimal.RequireFromString("385000"),
			"USDC": decimal.RequireFromString("3.7"),
		},
	}
}

// Rate returns the fiat price of one unit of the asset.
func (s *Service) Rate(asset string) (decimal.Decimal, error) {
	coinID, ok := coinIDs[asset]
	if !ok {
		return decimal.Decimal{}, payo.NewErr(payo.BadRequest, "unsupported asset: %s", asset)
	}
	rate, err := s.fetchRate(coinID)
	if err != nil {
		fb, ok := s.fallback[asset]
		if !ok {
			return decimal.Decimal{}, err
		}
		log.Printf("Rates: %s lookup failed, using fallback rate: %v", asset, err)
		return fb, nil
	}
	return rate, nil
}

// Convert turns a fiat amount into a formatted crypto amount for the
// method's asset (8 dp for BTC, 6 dp for USDC).
func (s *Service) Convert(amountFiat payo.CoinAmount, method payo.PaymentMethod) (string, error) {
	asset, _, err := method.AssetChain()
	if err != nil {
		return "", err
	}
	rate, err := s.Rate(asset)
	if err != nil {
		return "", err
	}
	if rate.LessThanOrEqual(decimal.Zero) {
		return "", payo.NewErr(payo.NotAvailable, "non-positive rate for %s", asset)
	}
	places := assetPlaces[asset]
	return amountFiat.DivRound(rate, places).StringFixed(places), nil
}

// Rates returns the current fiat rate per unit of each supported asset.
func (s *Service) Rates() (map[string]string, error) {
	out := make(map[string]string, len(coinIDs))
	for asset := range coinIDs {
		rate, err := s.Rate(asset)
		if err != nil {
			return nil, err
		}
		out[asset] = rate.String()
	}
	return out, nil
}

func (s *Service) fetchRate(coinID string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("ids", coinID)
	params.Set("vs_currencies", s.fiat)

	resp, err := s.client.Get(fmt.Sprintf("%s/simple/price?%s", s.apiURL, params.Encode()))
	if err != nil {
		return decimal.Decimal{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, fmt.Errorf("unexpected status %d from rate API", resp.StatusCode)
	}
	// {"bitcoin":{"pen":385000.12}}
	var body map[string]map[string]json.Number
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Decimal{}, err
	}
	raw, ok := body[coinID][s.fiat]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("rate API returned no %s price for %s", s.fiat, coinID)
	}
	return decimal.NewFromString(raw.String())
}
