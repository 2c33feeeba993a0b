package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

// Role enum
type Role string

const (
	RoleCitizen Role = "citizen"
	RoleNGO     Role = "ngo"
)

func (r Role) Valid() bool {
	return r == RoleCitizen || r == RoleNGO
}

type User struct {
	ID        primitive.ObjectID `bson:"_id" json:"id"`
	Name      string             `bson:"name" json:"name"`
	Email     string             `bson:"email" json:"email"`
	Password  string             `bson:"password,omitempty" json:"-"`
	Role      Role               `bson:"role" json:"role"`
	XPPoints  int64              `bson:"xpPoints" json:"xpPoints"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Registration carries the sign-up form.
type Registration struct {
	Name     string `json:"name" validate:"required,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     Role   `json:"role" validate:"omitempty,oneof=citizen ngo"`
}

// NewUser validates the registration and hashes the password. Role defaults
// to citizen and the XP balance starts at zero.
func NewUser(reg Registration, now time.Time) (*User, error) {
	reg.Name = strings.TrimSpace(reg.Name)
	reg.Email = strings.ToLower(strings.TrimSpace(reg.Email))
	if err := validateStruct(&reg); err != nil {
		return nil, err
	}
	if reg.Role == "" {
		reg.Role = RoleCitizen
	}
	now = now.UTC().Truncate(time.Millisecond)
	u := &User{
		ID:        primitive.NewObjectID(),
		Name:      reg.Name,
		Email:     reg.Email,
		Password:  reg.Password,
		Role:      reg.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := u.HashPassword(); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *User) HashPassword() error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashed)
	return nil
}

func (u *User) ComparePassword(candidate string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(candidate))
	return err == nil
}
