package email_templates

import (
	"encoding/json"
	"fmt"
	"os"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	notifModel "vulcan_backend/internals/features/notifications/notifications/model"
	"vulcan_backend/internals/helpers/logger"
)

type EmailTemplateSeed struct {
	Name        string `json:"name"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	Description string `json:"description"`
}

func SeedEmailTemplatesFromJSON(db *gorm.DB, filePath string) error {
	log := logger.For("seed")
	file, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("read %s: %w", filePath, err)
	}
	var inputs []EmailTemplateSeed
	if err := json.Unmarshal(file, &inputs); err != nil {
		return fmt.Errorf("decode %s: %w", filePath, err)
	}

	rows := make([]notifModel.EmailTemplateModel, 0, len(inputs))
	for _, in := range inputs {
		rows = append(rows, notifModel.EmailTemplateModel{
			Name:        in.Name,
			Subject:     in.Subject,
			Body:        in.Body,
			Format:      "text",
			Description: in.Description,
			Version:     1,
		})
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
	if res.Error != nil {
		return fmt.Errorf("insert email templates: %w", res.Error)
	}
	log.Info().Int64("inserted", res.RowsAffected).Int("total", len(rows)).Msg("email templates seeded")
	return nil
}
