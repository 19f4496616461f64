package seeds

import (
	"path/filepath"

	"gorm.io/gorm"

	emailTemplates "vulcan_backend/internals/seeds/email_templates"
	policies "vulcan_backend/internals/seeds/policies"
)

// RunAllSeeds loads reference data. Existing rows are left untouched, so it is
// safe to run on every deploy.
func RunAllSeeds(db *gorm.DB, dir string) error {
	if err := policies.SeedPoliciesFromJSON(db, filepath.Join(dir, "policies", "data_policies.json")); err != nil {
		return err
	}
	return emailTemplates.SeedEmailTemplatesFromJSON(db, filepath.Join(dir, "email_templates", "data_email_templates.json"))
}
