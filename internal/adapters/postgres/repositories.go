package postgres

import (
	"github.com/homedash/homedash/internal/ports"
	"gorm.io/gorm"
)

type Repositories struct {
	Users       ports.UserRepository
	Sessions    ports.SessionRepository
	Credentials ports.CredentialRepository
	Access      ports.AccessRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Users:       &userRepository{db: db},
		Sessions:    &sessionRepository{db: db},
		Credentials: &credentialRepository{db: db},
		Access:      &accessRepository{db: db},
	}
}
