package payo

import (
	"github.com/jinzhu/configor"
)

type Config struct {
	Gateway struct {
		// Fiat currency invoices are denominated in (lowercase ISO code,
		// as used by the rate API).
		FiatCurrency string `default:"pen"`
		// Minutes until a new invoice expires.
		ExpiryMinutes int `default:"15"`
		// Base URL for hosted payment pages, e.g. https://payo.app/pay
		PaymentURLBase string `default:"https://payo.app/pay"`
	}

	Listeners struct {
		// How often the manager re-reads pending invoices from the store
		// and sweeps expired ones.
		SyncIntervalSec int `default:"30"`
		// Delay before restarting a crashed listener loop.
		RestartDelaySec int `default:"5"`

		Onchain struct {
			// Esplora-compatible API (Blockstream et al).
			APIURL          string `default:"https://blockstream.info/api"`
			PollIntervalSec int    `default:"30"`
			Confirmations   int    `default:"1"`
		}

		Instant struct {
			// Lightning node REST endpoint.
			Endpoint        string `default:"https://localhost:8080"`
			Macaroon        string
			PollIntervalSec int `default:"10"`
		}

		Token struct {
			// Etherscan-family API for the token's chain.
			APIURL string `default:"https://api.basescan.org/api"`
			APIKey string
			// Token contract to watch transfers of (default: USDC on Base).
			Contract        string `default:"0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"`
			Decimals        int    `default:"6"`
			PollIntervalSec int    `default:"15"`
			Confirmations   int    `default:"3"`
		}
	}

	Rates struct {
		APIURL string `default:"https://api.coingecko.com/api/v3"`
	}

	Store struct {
		DBFile string `default:"payo.db"`
	}

	WebAPI struct {
		Bind string `default:"localhost"`
		Port string `default:"8090"`
	}

	// Log file destinations for bus messages.
	Loggers map[string]LoggersConfig

	// HTTP callback destinations for bus messages.
	Callbacks map[string]CallbackConfig
}

type LoggersConfig struct {
	Path  string
	Types []string
}

type CallbackConfig struct {
	Path       string
	HMACSecret string
	Types      []string
}

// LoadConfig builds a Config from the struct-tag defaults plus any
// config files given; with no files it yields the built-in defaults.
func LoadConfig(confPath ...string) Config {
	c := Config{}
	configor.Load(&c, confPath...)
	return c
}
