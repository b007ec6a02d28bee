package user

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/notification"
	"github.com/trezcool/maktaba/core/store"
	appfs "github.com/trezcool/maktaba/fs"
)

const SlotName = "users"

var (
	// errors
	ErrNotFound           = errors.New("user not found")
	ErrEmailExists        = errors.New("a user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDeactivated = errors.New("account deactivated")
)

type (
	Service interface {
		CheckUniqueness(email string, exclUsers ...User) error
		// Signup registers a student account, welcoming them with a notification and an email.
		Signup(ctx context.Context, nu NewUser) (User, error)
		// Create registers an account with the given roles; used by admins.
		Create(ctx context.Context, nu NewUser) (User, error)
		Authenticate(ctx context.Context, email, pwd string) (User, error)
		QueryAll() []User
		Query(filter *QueryFilter, orderings []core.Ordering) []User
		GetByID(id string) (User, error)
		GetByEmail(email string) (User, error)
		Update(ctx context.Context, id string, uu UpdateUser) (User, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		Delete(ctx context.Context, ids ...string) error
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, data ResetUserPassword) error
	}

	service struct {
		users    *store.Store[User]
		feed     *notification.Feed
		mailSvc  core.EmailService
		validate *validator.Validate
	}
)

var _ Service = (*service)(nil)

// NewStore returns the users collection store, seeded with the demo students.
func NewStore(slot store.Slot, bus store.Bus, conf *core.Config, logger core.Logger) (*store.Store[User], error) {
	var seed []User
	if err := appfs.LoadSeed(SlotName, &seed); err != nil {
		return nil, errors.Wrap(err, "loading users seed")
	}
	return store.New(slot, bus, store.Options[User]{
		Key:      store.Key(conf.Storage.Namespace, SlotName),
		Seed:     seed,
		Sanitize: sanitize,
		Logger:   logger,
	}), nil
}

// sanitize keeps inline avatars out of the slot.
func sanitize(usr User) User {
	if strings.HasPrefix(usr.AvatarURL, "data:image") {
		usr.AvatarURL = UploadedAvatar
	}
	usr.Email = core.CleanString(usr.Email, true /* lower */)
	return usr
}

func NewService(
	users *store.Store[User],
	feed *notification.Feed,
	mailSvc core.EmailService,
	validate *validator.Validate,
	conf *core.Config,
) Service {
	secretKey = []byte(conf.SecretKey)
	if conf.PasswordResetTimeoutDelta > 0 {
		passwordResetTimeoutDelta = conf.PasswordResetTimeoutDelta
	}
	return &service{
		users:    users,
		feed:     feed,
		mailSvc:  mailSvc,
		validate: validate,
	}
}

func (svc *service) CheckUniqueness(email string, exclUsers ...User) error {
	email = core.CleanString(email, true /* lower */)
	for _, usr := range svc.users.All() {
		if usr.Email != email {
			continue
		}
		excluded := false
		for _, excl := range exclUsers {
			if excl.ID == usr.ID {
				excluded = true
				break
			}
		}
		if !excluded {
			return core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
		}
	}
	return nil
}

func (svc *service) Signup(ctx context.Context, nu NewUser) (User, error) {
	nu.Roles = []string{RoleStudent}
	usr, err := svc.Create(ctx, nu)
	if err != nil {
		return User{}, err
	}

	// the account exists even if the feed is full
	_, _ = svc.feed.Produce(ctx, notification.New{
		Title:       "Welcome, " + usr.Name + "!",
		Description: "Your account has been created successfully.",
		Type:        notification.TypeWelcome,
	})
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Welcome!",
		TemplateName: "welcome",
		TemplateData: map[string]interface{}{"Name": usr.Name},
	})
	return usr, nil
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	roles := nu.Roles
	if len(roles) == 0 {
		roles = []string{RoleStudent}
	}
	avatar := nu.AvatarURL
	if avatar == "" {
		avatar = DefaultAvatarURL
	}
	usr := User{
		ID:         uuid.NewString(),
		Name:       nu.Name,
		Email:      core.CleanString(nu.Email, true /* lower */),
		Course:     nu.Course,
		Year:       nu.Year,
		Semester:   nu.Semester,
		Phone:      nu.Phone,
		AvatarURL:  avatar,
		Roles:      roles,
		SignedUpAt: now,
		UpdatedAt:  now,
	}
	usr.SetActive(true)
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	res := svc.users.InsertUnique(ctx, usr, func(other User) error {
		if other.Email == usr.Email {
			return ErrEmailExists
		}
		return nil
	})
	if errors.Is(res.Cause(), ErrEmailExists) {
		return User{}, core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
	}
	if err := res.Err(); err != nil {
		return User{}, err
	}
	return sanitize(usr), nil
}

func (svc *service) Authenticate(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.GetByEmail(email)
	if err != nil {
		if err == ErrNotFound {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrInvalidCredentials
	}
	if !usr.Active() {
		return User{}, ErrAccountDeactivated
	}
	return svc.SetLastLogin(ctx, usr)
}

// QueryAll returns every user ordered by name.
func (svc *service) QueryAll() []User {
	return svc.Query(nil, nil)
}

// Query applies AND operation on available QueryFilter fields.
// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Email or User.Course.
func (svc *service) Query(filter *QueryFilter, orderings []core.Ordering) []User {
	users := svc.users.All()
	if filter != nil && !filter.IsEmpty() {
		out := users[:0]
		for _, usr := range users {
			if filter.matches(usr) {
				out = append(out, usr)
			}
		}
		users = out
	}
	if len(orderings) == 0 {
		orderings = []core.Ordering{{Field: "name", Ascending: true}}
	}
	core.SortBy(users, orderings, compareUsers)
	return users
}

func compareUsers(field string, a, b User) int {
	switch field {
	case "name":
		return core.CompareStrings(a.Name, b.Name)
	case "email":
		return core.CompareStrings(a.Email, b.Email)
	case "year":
		return core.CompareStrings(a.Year, b.Year)
	case "signed_up_at":
		return a.SignedUpAt.Compare(b.SignedUpAt)
	case "last_login":
		return a.LastLogin.Compare(b.LastLogin)
	}
	return 0
}

func (svc *service) GetByID(id string) (User, error) {
	usr, ok := svc.users.Get(id)
	if !ok {
		return User{}, ErrNotFound
	}
	return usr, nil
}

func (svc *service) GetByEmail(email string) (User, error) {
	email = core.CleanString(email, true /* lower */)
	for _, usr := range svc.users.All() {
		if usr.Email == email {
			return usr, nil
		}
	}
	return User{}, ErrNotFound
}

// Update merges the non-zero fields of uu into the user; other fields keep their value.
func (svc *service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	if _, err := svc.GetByID(id); err != nil {
		return User{}, err
	}

	fields := map[string]interface{}{"updated_at": time.Now().UTC()}
	setStr := func(key, val string) {
		if val != "" {
			fields[key] = val
		}
	}
	setStr("name", uu.Name)
	setStr("email", uu.Email)
	setStr("course", uu.Course)
	setStr("year", uu.Year)
	setStr("semester", uu.Semester)
	setStr("phone", uu.Phone)
	setStr("avatar_url", uu.AvatarURL)
	if uu.IsActive != nil {
		fields["is_active"] = *uu.IsActive
	}
	if uu.Roles != nil {
		fields["roles"] = uu.Roles
	}
	if uu.Password != "" {
		var tmp User
		if err := tmp.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "hashing password")
		}
		fields["password_hash"] = tmp.PasswordHash
	}

	if err := svc.users.Update(ctx, id, fields).Err(); err != nil {
		return User{}, err
	}
	return svc.GetByID(id)
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	now := time.Now().UTC()
	if err := svc.users.Modify(ctx, usr.ID, func(u *User) { u.LastLogin = now }).Err(); err != nil {
		return User{}, errors.Wrap(err, "setting last login")
	}
	usr.LastLogin = now
	return usr, nil
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return svc.users.DeleteMany(ctx, ids...).Err()
}

// RequestPasswordReset emails a password reset link to the active user with this email.
func (svc *service) RequestPasswordReset(_ context.Context, email string) error {
	usr, err := svc.GetByEmail(email)
	if err != nil {
		return err
	}
	if !usr.Active() {
		return ErrNotFound
	}
	svc.sendPasswordResetMail(usr)
	return nil
}

func (svc *service) sendPasswordResetMail(usr User) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: map[string]interface{}{
			"Name":  usr.Name,
			"UID":   EncodeUID(usr),
			"Token": MakeToken(usr),
		},
	})
}

func (svc *service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	invalidErr := core.NewValidationError(errInvalidToken, core.FieldError{Field: "token", Error: "invalid token"})

	id, err := decodeUID(data.UID)
	if err != nil {
		return invalidErr
	}
	usr, err := svc.GetByID(id)
	if err != nil {
		if err == ErrNotFound {
			return invalidErr
		}
		return err
	}
	switch err = verifyToken(usr, data.Token); err {
	case nil:
	case errTokenExpired:
		return core.NewValidationError(err, core.FieldError{Field: "token", Error: "token expired"})
	default:
		return invalidErr
	}

	if _, err = svc.Update(ctx, usr.ID, UpdateUser{Password: data.Password}); err != nil {
		return errors.Wrap(err, "updating password")
	}
	_, _ = svc.feed.Produce(ctx, notification.New{
		Title:       "Security Alert",
		Description: "Your password has been reset. If this wasn't you, please secure your account.",
		Type:        notification.TypeSecurity,
	})
	return nil
}

func (qf *QueryFilter) matches(usr User) bool {
	if qf.Search != "" &&
		!(core.ContainsFold(usr.Name, qf.Search) ||
			core.ContainsFold(usr.Email, qf.Search) ||
			core.ContainsFold(usr.Course, qf.Search)) {
		return false
	}
	if len(qf.Roles) > 0 {
		var found bool
		for _, role := range qf.Roles {
			if usr.RoleStartsWith(role) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if qf.IsActive != nil && usr.Active() != *qf.IsActive {
		return false
	}
	if !qf.SignedUpFrom.IsZero() && usr.SignedUpAt.Before(qf.SignedUpFrom) {
		return false
	}
	if !qf.SignedUpTo.IsZero() && usr.SignedUpAt.After(qf.SignedUpTo) {
		return false
	}
	if qf.Year != "" && usr.Year != qf.Year {
		return false
	}
	return true
}
