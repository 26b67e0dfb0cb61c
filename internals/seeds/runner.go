package seeds

import (
	"log"

	"gorm.io/gorm"

	admins "noorulfityan_backend/internals/seeds/users/admins"
)

// RunAllSeeds loads optional bootstrap data. An empty path skips that seed.
func RunAllSeeds(db *gorm.DB, adminsFile string) {
	//* Users
	if adminsFile != "" {
		if err := admins.SeedAdminsFromJSON(db, adminsFile); err != nil {
			log.Printf("[ERROR] admin seed: %v", err)
		}
	}
}
