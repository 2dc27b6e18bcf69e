package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tamoortahir09/atlas-store/internal/domain"
)

// DefaultLocalConfig returns the built-in product configuration. Product ids
// reference the production PayNow store; deployments with a different store
// override this with a config file.
func DefaultLocalConfig() LocalConfig {
	return LocalConfig{
		Ranks: []domain.RankConfig{
			{
				Tier:            "vip",
				Name:            "VIP",
				Position:        0,
				PayNowProductID: "prod_rank_vip",
				Benefits:        []string{"Colored name", "2 vote bonus gems", "VIP queue priority"},
			},
			{
				Tier:            "vip_plus",
				Name:            "VIP+",
				Position:        1,
				PayNowProductID: "prod_rank_vip_plus",
				Benefits:        []string{"All VIP benefits", "Daily gem stipend", "Exclusive kits"},
			},
			{
				Tier:            "mvp",
				Name:            "MVP",
				Position:        2,
				PayNowProductID: "prod_rank_mvp",
				Benefits:        []string{"All VIP+ benefits", "Private vault", "MVP chat badge"},
			},
			{
				Tier:            "legend",
				Name:            "Legend",
				Position:        3,
				PayNowProductID: "prod_rank_legend",
				Benefits:        []string{"All MVP benefits", "Custom kill feed", "Monthly skin drop"},
			},
		},
		GemPackages: []domain.GemConfig{
			{Amount: 500, Name: "500 Gems", PayNowProductID: "prod_gems_500"},
			{Amount: 1200, Name: "1200 Gems", PayNowProductID: "prod_gems_1200"},
			{Amount: 2500, Name: "2500 Gems", PayNowProductID: "prod_gems_2500"},
			{Amount: 6500, Name: "6500 Gems", PayNowProductID: "prod_gems_6500"},
		},
		Bundles: []domain.BundleConfig{
			{
				ID:              "bundle_ultimate",
				Name:            "Ultimate Bundle",
				PayNowProductID: "prod_bundle_ultimate",
				IncludedRankIDs: []string{"prod_rank_vip", "prod_rank_vip_plus", "prod_rank_mvp"},
				BonusGems:       1000,
			},
		},
	}
}

// LoadLocalConfig reads product configuration from a JSON file. An empty
// path returns the built-in defaults.
func LoadLocalConfig(path string) (LocalConfig, error) {
	if path == "" {
		return DefaultLocalConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return LocalConfig{}, fmt.Errorf("read catalog config %s: %w", path, err)
	}

	var cfg LocalConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return LocalConfig{}, fmt.Errorf("parse catalog config %s: %w", path, err)
	}
	return cfg, nil
}
