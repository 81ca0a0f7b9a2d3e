package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port            int64
		HelpersFilePath string
	}

	Redis struct {
		Host     string
		Port     string
		User     string
		Password string
		DB       int
	}

	Database struct {
		DSN string
	}

	BlockStorage struct {
		Host      string
		Region    string
		AccessKey string
		SecretKey string
		Bucket    string
	}

	Ledger struct {
		Endpoint      string
		Network       string
		MetadataLabel uint64
	}

	Biometric struct {
		GridSize             float64
		AngleBins            int
		QualityThreshold     int
		MinMinutiae          int
		BaseFallbackQuality  int
		FallbackQualityStep  int
		RequireAllFingers    bool
		RecoverMinAvgQuality float64
	}
}

func ReadConfig(configName string) (Config, error) {
	viper.SetConfigName(configName)
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	viper.SetDefault("Server.Port", 8080)
	viper.SetDefault("Server.HelpersFilePath", "helpers")
	viper.SetDefault("Ledger.Network", "mainnet")
	viper.SetDefault("Ledger.MetadataLabel", 1990)
	viper.SetDefault("Biometric.GridSize", 10.0)
	viper.SetDefault("Biometric.AngleBins", 16)
	viper.SetDefault("Biometric.QualityThreshold", 30)
	viper.SetDefault("Biometric.MinMinutiae", 10)
	viper.SetDefault("Biometric.BaseFallbackQuality", 75)
	viper.SetDefault("Biometric.FallbackQualityStep", 5)
	viper.SetDefault("Biometric.RecoverMinAvgQuality", 60.0)

	var cfg Config
	if err := viper.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("fail to read config file: %w", err)
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("fail to unmarshal config: %w", err)
	}
	return cfg, nil
}
