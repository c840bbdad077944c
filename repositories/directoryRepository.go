package repositories

import (
	"MediSlot/cache"

	"gorm.io/gorm"
)

// DirectoryRepository answers the identity lookups of the scheduling core by
// combining the doctor and patient repositories.
type DirectoryRepository struct {
	*DoctorRepository
	*PatientRepository
}

func NewDirectoryRepository(db *gorm.DB, cache *cache.Cache) *DirectoryRepository {
	return &DirectoryRepository{
		DoctorRepository:  NewDoctorRepository(db, cache),
		PatientRepository: NewPatientRepository(db),
	}
}
