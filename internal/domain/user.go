package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is a registered trader account.
type User struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	ContactNumber string    `json:"contactNumber"`
	IDProofNumber string    `json:"idProofNumber"`
	DOB           time.Time `json:"dob"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	IDProofImage  []byte    `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Admin is a back-office account.
type Admin struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
}
