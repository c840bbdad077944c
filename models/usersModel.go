package models

import (
	"time"

	"gorm.io/gorm"
)

// Role names stored in the roles table and carried in access tokens.
const (
	RoleAdmin   = "Admin"
	RoleDoctor  = "Doctor"
	RolePatient = "Patient"
)

// Role represents a user role
type Role struct {
	ID          int64     `gorm:"primaryKey;column:id" json:"id"`
	Name        string    `gorm:"size:50;not null;unique;index;column:name" json:"name"`
	Description string    `gorm:"type:text;column:description" json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime;column:created_at" json:"created_at"`
}

func (Role) TableName() string {
	return "roles"
}

// SeedRoles inserts initial roles into the database
func SeedRoles(db *gorm.DB) error {
	initialRoles := []Role{
		{Name: RoleAdmin, Description: "Full access to the system"},
		{Name: RoleDoctor, Description: "Manages availability and reviews appointments"},
		{Name: RolePatient, Description: "Searches doctors and books appointments"},
	}
	return db.Transaction(func(tx *gorm.DB) error {
		for _, role := range initialRoles {
			if err := tx.FirstOrCreate(&role, Role{Name: role.Name}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// User represents an account in the system
type User struct {
	ID          int64     `gorm:"primaryKey;column:id" json:"id"`
	Name        string    `gorm:"size:100;not null;column:name" json:"name"`
	Email       string    `gorm:"size:255;not null;unique;index;column:email" json:"email"`
	PhoneNumber string    `gorm:"size:32;column:phone_number" json:"phone_number"`
	Password    string    `gorm:"size:255;not null;column:password_hash" json:"-"`
	RoleID      int64     `gorm:"index;not null;column:role_id" json:"role_id"`
	Role        Role      `gorm:"foreignKey:RoleID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"role"`
	CreatedAt   time.Time `gorm:"autoCreateTime;column:created_at" json:"created_at"`
}

func (User) TableName() string {
	return "users"
}

// Doctor model
type Doctor struct {
	ID             uint      `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	UserID         int64     `gorm:"column:user_id;not null;uniqueIndex" json:"user_id"`
	Specialization string    `gorm:"column:specialization;not null;index" json:"specialization"`
	ContactNumber  string    `gorm:"column:contact_number" json:"contact_number"`
	ClinicAddress  string    `gorm:"column:clinic_address" json:"clinic_address"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	User           User      `gorm:"foreignKey:UserID;references:ID" json:"user"`
}

func (Doctor) TableName() string {
	return "doctor"
}

// Patient model
type Patient struct {
	ID        uint      `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	UserID    int64     `gorm:"column:user_id;not null;uniqueIndex" json:"user_id"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	User      User      `gorm:"foreignKey:UserID;references:ID" json:"user"`
}

func (Patient) TableName() string {
	return "patient"
}
