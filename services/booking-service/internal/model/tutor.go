package model

import (
	"strings"
	"time"
)

// Tutor is a public profile owned by a tutor account.
type Tutor struct {
	ID              string
	AccountID       string
	DisplayName     string
	Bio             string
	Subjects        []string
	HourlyRateCents int64
	Currency        string
	Rating          float64
	Timezone        string
	CreatedAt       time.Time
}

func (t Tutor) Teaches(subject string) bool {
	subject = strings.TrimSpace(subject)
	for _, s := range t.Subjects {
		if strings.EqualFold(s, subject) {
			return true
		}
	}
	return false
}

type Role string

const (
	RoleStudent Role = "student"
	RoleTutor   Role = "tutor"
)

func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTutor
}

type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	DisplayName  string
	CreatedAt    time.Time
}
