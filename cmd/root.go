package cmd

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/carematch/community-recommender/internal/pipeline"
)

const app = "community-recommender"

type Config struct {
	Catalog   *CatalogConfig   `mapstructure:"catalog"`
	Locations *LocationsConfig `mapstructure:"locations"`
	AI        *AIConfig        `mapstructure:"ai"`
	Geocoder  *GeocoderConfig  `mapstructure:"geocoder"`
	Pipeline  *PipelineConfig  `mapstructure:"pipeline"`
	Pricing   *pipeline.Pricing `mapstructure:"pricing"`
	CRM       *CRMConfig       `mapstructure:"crm"`
	Server    *ServerConfig    `mapstructure:"server"`
}

type CatalogConfig struct {
	File string `mapstructure:"file"`
}

type LocationsConfig struct {
	File string `mapstructure:"file"`
}

type AIConfig struct {
	Provider        string        `mapstructure:"provider"`
	TextTemperature float32       `mapstructure:"text-temperature"`
	Gemini          *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
}

type GeocoderConfig struct {
	BaseURL           string  `mapstructure:"base-url"`
	UserAgent         string  `mapstructure:"user-agent"`
	CacheSize         int     `mapstructure:"cache-size"`
	RequestsPerSecond float64 `mapstructure:"requests-per-second"`
}

type PipelineConfig struct {
	BudgetTolerance float64            `mapstructure:"budget-tolerance"`
	ShortlistSize   int                `mapstructure:"shortlist-size"`
	CallTimeout     time.Duration      `mapstructure:"call-timeout"`
	TotalBudget     time.Duration      `mapstructure:"total-budget"`
	Weights         map[string]float64 `mapstructure:"weights"`
}

type CRMConfig struct {
	File string `mapstructure:"file"`
}

type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "community-recommender turns placement consultations into ranked senior-living recommendations",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is "+app+".yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	if err := viper.BindEnv("ai.gemini.api-key", "GEMINI_API_KEY"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY environment variable: %v", err)
	}
}

func initConfig() {
	// Provider credentials may live in a local .env file, as in development
	// setups. Absence is fine.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
		viper.SetConfigType("yaml")
	}

	// We can't proceed if the config file parsed with error.
	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return config, err
	}
	if config == nil {
		config = &Config{}
	}
	return config, nil
}
