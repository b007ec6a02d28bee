package user

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/maktaba/core"
)

// Roles
const (
	// Admin
	RoleAdmin      = "admin:"
	RoleAdminOwner = "admin:owner"

	// Student
	RoleStudent = "student:"
)

const (
	DefaultAvatarURL = "https://placehold.co/100x100.png"
	// UploadedAvatar replaces inline (data URI) avatars when users are persisted.
	UploadedAvatar = "user-uploaded"
)

var (
	AdminRoles   = []string{RoleAdmin, RoleAdminOwner}
	StudentRoles = []string{RoleStudent}
	AllRoles     = getAllRoles()

	rolePriorities = map[string]int{
		// Admins: 30 - 21
		RoleAdminOwner: 30,
		RoleAdmin:      21,

		// Students: 10 - 1
		RoleStudent: 1,
	}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Admin", Value: RoleAdmin},
		{Name: "Admin Owner", Value: RoleAdminOwner},
	}

	Years = core.Years
)

func getAllRoles() []string {
	all := make([]string, 0, 3)
	all = append(all, AdminRoles...)
	all = append(all, StudentRoles...)
	return all
}

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// User is the persisted user record. Use Profile for anything sent to clients.
type User struct {
	ID           string    `json:"id" yaml:"id"`
	Name         string    `json:"name" yaml:"name"`
	Email        string    `json:"email" yaml:"email"`
	Course       string    `json:"course,omitempty" yaml:"course"`
	Year         string    `json:"year,omitempty" yaml:"year"`
	Semester     string    `json:"semester,omitempty" yaml:"semester"`
	Phone        string    `json:"phone,omitempty" yaml:"phone"`
	AvatarURL    string    `json:"avatar_url,omitempty" yaml:"avatar_url"`
	IsActive     *bool     `json:"is_active,omitempty" yaml:"is_active"`
	Roles        []string  `json:"roles,omitempty" yaml:"roles"`
	PasswordHash []byte    `json:"password_hash,omitempty" yaml:"-"`
	SignedUpAt   time.Time `json:"signed_up_at" yaml:"signed_up_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`     // UTC
	LastLogin    time.Time `json:"last_login" yaml:"last_login"`     // UTC
}

func (u User) RecordID() string { return u.ID }

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	if len(u.PasswordHash) == 0 {
		return bcrypt.ErrMismatchedHashAndPassword
	}
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) SetActive(active bool) {
	u.IsActive = &active
}

// Active reports whether the user may log in. Users are active unless explicitly deactivated.
func (u User) Active() bool {
	return u.IsActive == nil || *u.IsActive
}

func (u User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u User) IsAdmin() bool {
	return u.RoleStartsWith(RoleAdmin)
}

func (u User) IsStudent() bool {
	return u.RoleStartsWith(RoleStudent)
}

// Profile is the public representation of a User.
type Profile struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Course     string    `json:"course,omitempty"`
	Year       string    `json:"year,omitempty"`
	Semester   string    `json:"semester,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	AvatarURL  string    `json:"avatar_url"`
	IsActive   bool      `json:"is_active"`
	Roles      []string  `json:"roles"`
	SignedUpAt time.Time `json:"signed_up_at"`
	LastLogin  time.Time `json:"last_login"`
}

func (u User) Profile() Profile {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	avatar := u.AvatarURL
	if avatar == "" {
		avatar = DefaultAvatarURL
	}
	return Profile{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		Course:     u.Course,
		Year:       u.Year,
		Semester:   u.Semester,
		Phone:      u.Phone,
		AvatarURL:  avatar,
		IsActive:   u.Active(),
		Roles:      roles,
		SignedUpAt: u.SignedUpAt,
		LastLogin:  u.LastLogin,
	}
}

func Profiles(users []User) []Profile {
	out := make([]Profile, 0, len(users))
	for _, u := range users {
		out = append(out, u.Profile())
	}
	return out
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string   `json:"name" validate:"required,max=100"`
	Email           string   `json:"email" validate:"required,email"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Course          string   `json:"course" validate:"omitempty,max=100"`
	Year            string   `json:"year" validate:"omitempty,year"`
	Semester        string   `json:"semester" validate:"omitempty,max=20"`
	Phone           string   `json:"phone" validate:"omitempty,e164"`
	AvatarURL       string   `json:"avatar_url" validate:"omitempty,avatar"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
}

func (nu *NewUser) Validate(validate *validator.Validate, svc Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Course = core.CleanString(nu.Course)
	nu.Semester = core.CleanString(nu.Semester)
	nu.Phone = core.CleanString(nu.Phone)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
// Zero values are left untouched.
type UpdateUser struct {
	Name            string   `json:"name" validate:"omitempty,max=100"`
	Email           string   `json:"email" validate:"omitempty,email"`
	Course          string   `json:"course" validate:"omitempty,max=100"`
	Year            string   `json:"year" validate:"omitempty,year"`
	Semester        string   `json:"semester" validate:"omitempty,max=20"`
	Phone           string   `json:"phone" validate:"omitempty,e164"`
	AvatarURL       string   `json:"avatar_url" validate:"omitempty,avatar"`
	IsActive        *bool    `json:"is_active"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
	Password        string   `json:"password" validate:"omitempty"`
	PasswordConfirm string   `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`

	// used by the password policy only
	origName  string
	origEmail string
}

func (uu *UpdateUser) Validate(origUsr User, validate *validator.Validate, svc Service) error {
	uu.Name = core.CleanString(uu.Name)
	uu.Email = core.CleanString(uu.Email, true /* lower */)
	uu.Course = core.CleanString(uu.Course)
	uu.Semester = core.CleanString(uu.Semester)
	uu.Phone = core.CleanString(uu.Phone)
	uu.origName, uu.origEmail = origUsr.Name, origUsr.Email

	if err := validate.Struct(uu); err != nil {
		return err
	}
	if uu.Email == "" || uu.Email == origUsr.Email {
		return nil
	}
	return svc.CheckUniqueness(uu.Email, origUsr)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type QueryFilter struct {
	Search       string    `query:"search"`
	Roles        []string  `query:"role"`
	IsActive     *bool     `query:"is_active"`
	SignedUpFrom time.Time `query:"signed_up_from"`
	SignedUpTo   time.Time `query:"signed_up_to"`
	Year         string    `query:"year"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil && qf.SignedUpFrom.IsZero() &&
		qf.SignedUpTo.IsZero() && qf.Year == ""
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Year = core.CleanString(qf.Year)
}
