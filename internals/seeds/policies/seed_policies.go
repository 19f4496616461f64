package policies

import (
	"encoding/json"
	"fmt"
	"os"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	policyModel "vulcan_backend/internals/features/policies/policies/model"
	"vulcan_backend/internals/helpers/logger"
)

type PolicySeed struct {
	Key   string `json:"key"`
	Value int    `json:"value"`
}

func SeedPoliciesFromJSON(db *gorm.DB, filePath string) error {
	log := logger.For("seed")
	file, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("read %s: %w", filePath, err)
	}
	var inputs []PolicySeed
	if err := json.Unmarshal(file, &inputs); err != nil {
		return fmt.Errorf("decode %s: %w", filePath, err)
	}

	rows := make([]policyModel.PolicyModel, 0, len(inputs))
	for _, in := range inputs {
		rows = append(rows, policyModel.PolicyModel{Key: in.Key, Value: in.Value})
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
	if res.Error != nil {
		return fmt.Errorf("insert policies: %w", res.Error)
	}
	log.Info().Int64("inserted", res.RowsAffected).Int("total", len(rows)).Msg("policies seeded")
	return nil
}
