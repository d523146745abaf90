package main

import (
	"encoding/json"
	"fmt"
	"os"

	payo "github.com/payoapp/payo/pkg"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	// Load config
	var configPath string
	var config payo.Config

	LoadConfig(configPath, &config)

	// define root command
	rootCmd := &cobra.Command{
		Use: "payo",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
			os.Exit(0)
		},
	}

	// Add flags for each configuration option
	rootCmd.PersistentFlags().StringVar(&config.Gateway.FiatCurrency, "fiat-currency", "", "Fiat currency invoices are denominated in")
	rootCmd.PersistentFlags().IntVar(&config.Gateway.ExpiryMinutes, "expiry-minutes", 0, "Minutes until a new invoice expires")
	rootCmd.PersistentFlags().StringVar(&config.Gateway.PaymentURLBase, "payment-url-base", "", "Base URL for hosted payment pages")
	rootCmd.PersistentFlags().StringVar(&config.Listeners.Onchain.APIURL, "onchain-api", "", "Esplora-compatible API URL")
	rootCmd.PersistentFlags().StringVar(&config.Listeners.Instant.Endpoint, "lightning-endpoint", "", "Lightning node REST endpoint")
	rootCmd.PersistentFlags().StringVar(&config.Listeners.Token.APIURL, "token-api", "", "Etherscan-family API URL")
	rootCmd.PersistentFlags().StringVar(&config.Listeners.Token.APIKey, "token-api-key", "", "Token API key")
	rootCmd.PersistentFlags().StringVar(&config.WebAPI.Port, "webapi-port", "", "Web API port")
	rootCmd.PersistentFlags().StringVar(&config.WebAPI.Bind, "webapi-bind", "", "Web API bind")
	rootCmd.PersistentFlags().StringVar(&config.Store.DBFile, "store-db-file", "", "Store DB file")
	// Bind flags to config fields
	viper.BindPFlags(rootCmd.PersistentFlags())

	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Start the Payo gateway server",
		Run: func(cmd *cobra.Command, args []string) {
			Server(config)
		},
	}

	configCmd := &cobra.Command{
		Use:   "showconf",
		Short: "Print the config state and exit",
		Run: func(cmd *cobra.Command, args []string) {
			o, _ := json.MarshalIndent(config, ">", " ")
			fmt.Println(string(o))
			os.Exit(0)
		},
	}

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(configCmd)

	// Execute the Cobra command
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
	}
}

func LoadConfig(configPath string, config *payo.Config) {

	configFileName, set := os.LookupEnv("PAYO_ENV")
	if set {
		viper.SetConfigName(configFileName)
	} else {
		viper.SetConfigName("config")
	}

	// Set config file name and search paths
	viper.SetConfigType("toml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/payo/")
	viper.AddConfigPath("$HOME/.payo")

	if err := viper.ReadInConfig(); err != nil {
		// no config file: run on the built-in defaults
		fmt.Println("no config file found, using built-in defaults:", err)
		*config = payo.LoadConfig()
		return
	}

	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("failed to unmarshal config: %s", err))
	}
}
