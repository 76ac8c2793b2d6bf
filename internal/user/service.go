// Package user handles trader registration, login and the admin back office.
package user

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/crypto/bcrypt"

	"github.com/mtlprog/cryptopro/internal/domain"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrDuplicate          = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidInput       = errors.New("invalid input")
)

// Error pairs a sentinel with the message shown to the client.
type Error struct {
	Err     error
	Message string
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Err }

func newError(sentinel error, msg string) error {
	return &Error{Err: sentinel, Message: msg}
}

const (
	passwordCost    = 10
	maxIDProofBytes = 1 << 20
	dobLayout       = "2006-01-02"
)

var (
	passwordCharset = regexp.MustCompile(`^[A-Za-z\d@$!%*?&]{8,}$`)
	jpegMagic       = []byte{0xFF, 0xD8, 0xFF}
)

var duplicateMessages = map[Lookup]string{
	ByEmail:         "Email address already exists. Please use a different email.",
	ByContactNumber: "Contact number already exists. Please use a different contact number.",
	ByIDProofNumber: "ID proof number already exists. Please verify your information.",
}

// Identity is the authenticated caller of a request.
type Identity struct {
	ID    uuid.UUID
	Email string
}

// RegisterInput is the sign-up form.
type RegisterInput struct {
	Name          string `json:"name"`
	ContactNumber string `json:"contactNumber"`
	IDProofNumber string `json:"idProofNumber"`
	DOB           string `json:"dob"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	IDProofBase64 string `json:"idProofBase64"`
}

// CheckInput holds the attributes probed by CheckExists. Empty fields are skipped.
type CheckInput struct {
	Email         string `json:"email"`
	ContactNumber string `json:"contactNumber"`
	IDProofNumber string `json:"idProofNumber"`
}

// AdminView is a user as listed in the back office.
type AdminView struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	ContactNumber string    `json:"contactNumber"`
	IDProofNumber string    `json:"idProofNumber"`
	DOB           string    `json:"dob"`
	IDProofImage  *string   `json:"idProofImage"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Service implements user and admin account operations.
type Service struct {
	repo   Repository
	tokens *Tokens
	now    func() time.Time
}

// NewService creates a new user service.
func NewService(repo Repository, tokens *Tokens, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, tokens: tokens, now: now}
}

// ValidPassword reports whether p has at least 8 allowed characters including an
// upper-case letter, a digit and one of @$!%*?&.
func ValidPassword(p string) bool {
	return passwordCharset.MatchString(p) &&
		strings.ContainsAny(p, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") &&
		strings.ContainsAny(p, "0123456789") &&
		strings.ContainsAny(p, "@$!%*?&")
}

// DecodeIDProof decodes a base64 JPEG, optionally given as a data URI.
func DecodeIDProof(encoded string) ([]byte, error) {
	if i := strings.Index(encoded, ","); strings.HasPrefix(encoded, "data:") && i >= 0 {
		encoded = encoded[i+1:]
	}
	img, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("decoding ID proof: %w", err)
	}
	if len(img) > maxIDProofBytes {
		return nil, fmt.Errorf("ID proof is %d bytes, limit is %d", len(img), maxIDProofBytes)
	}
	if !bytes.HasPrefix(img, jpegMagic) {
		return nil, errors.New("ID proof is not a JPEG image")
	}
	return img, nil
}

// Register creates a new user account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	if in.IDProofBase64 == "" {
		return domain.User{}, newError(ErrInvalidInput, "ID proof image is required and must be in JPG format.")
	}
	if !ValidPassword(in.Password) {
		return domain.User{}, newError(ErrInvalidInput, "Password must meet complexity requirements.")
	}
	if lo.SomeBy([]string{in.Name, in.ContactNumber, in.IDProofNumber, in.DOB, in.Email}, func(v string) bool {
		return strings.TrimSpace(v) == ""
	}) {
		return domain.User{}, newError(ErrInvalidInput, "All fields are required.")
	}
	dob, err := time.Parse(dobLayout, in.DOB)
	if err != nil {
		return domain.User{}, newError(ErrInvalidInput, "Date of birth must be in YYYY-MM-DD format.")
	}

	exists, msg, err := s.CheckExists(ctx, CheckInput{
		Email:         in.Email,
		ContactNumber: in.ContactNumber,
		IDProofNumber: in.IDProofNumber,
	})
	if err != nil {
		return domain.User{}, err
	}
	if exists {
		return domain.User{}, newError(ErrDuplicate, msg)
	}

	img, err := DecodeIDProof(in.IDProofBase64)
	if err != nil {
		return domain.User{}, &Error{Err: fmt.Errorf("%w: %v", ErrInvalidInput, err), Message: "ID proof image is required and must be in JPG format."}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), passwordCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hashing password: %w", err)
	}

	u := domain.User{
		ID:            uuid.New(),
		Name:          strings.TrimSpace(in.Name),
		ContactNumber: strings.TrimSpace(in.ContactNumber),
		IDProofNumber: strings.TrimSpace(in.IDProofNumber),
		DOB:           dob,
		Email:         strings.TrimSpace(in.Email),
		PasswordHash:  string(hash),
		IDProofImage:  img,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return domain.User{}, newError(ErrDuplicate, "User already exists.")
		}
		return domain.User{}, err
	}
	return u, nil
}

// Login verifies credentials and returns a session token and the user.
func (s *Service) Login(ctx context.Context, email, password string) (string, domain.User, error) {
	if email == "" || password == "" {
		return "", domain.User{}, newError(ErrInvalidInput, "Email and password are required")
	}
	u, err := s.repo.FindUser(ctx, ByEmail, email)
	if errors.Is(err, ErrNotFound) {
		return "", domain.User{}, newError(ErrNotFound, "Email not found. Please check your email or register for an account.")
	}
	if err != nil {
		return "", domain.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", domain.User{}, newError(ErrInvalidCredentials, "Incorrect password. Please try again.")
	}

	token, err := s.tokens.Issue(Identity{ID: u.ID, Email: u.Email})
	if err != nil {
		return "", domain.User{}, err
	}
	return token, u, nil
}

// Authenticate verifies a bearer token.
func (s *Service) Authenticate(token string) (Identity, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return Identity{}, err
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return Identity{ID: id, Email: claims.Email}, nil
}

// CheckExists reports whether any provided attribute is already registered.
// Attributes are checked in the order email, contact number, ID proof number.
func (s *Service) CheckExists(ctx context.Context, in CheckInput) (bool, string, error) {
	probes := []lo.Tuple2[Lookup, string]{
		lo.T2(ByEmail, in.Email),
		lo.T2(ByContactNumber, in.ContactNumber),
		lo.T2(ByIDProofNumber, in.IDProofNumber),
	}
	probes = lo.Filter(probes, func(p lo.Tuple2[Lookup, string], _ int) bool {
		return strings.TrimSpace(p.B) != ""
	})
	if len(probes) == 0 {
		return false, "", newError(ErrInvalidInput, "At least one parameter (email, contactNumber, or idProofNumber) is required")
	}

	for _, p := range probes {
		_, err := s.repo.FindUser(ctx, p.A, strings.TrimSpace(p.B))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return false, "", err
		}
		return true, duplicateMessages[p.A], nil
	}
	return false, "User information is available for registration", nil
}

// Get returns the user with id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.User, error) {
	u, err := s.repo.GetUser(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return domain.User{}, newError(ErrNotFound, "User not found")
	}
	return u, err
}

// AdminLogin verifies back-office credentials.
func (s *Service) AdminLogin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return newError(ErrInvalidInput, "Email and password are required.")
	}
	a, err := s.repo.FindAdmin(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return newError(ErrNotFound, "Admin not found.")
	}
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) != nil {
		return newError(ErrInvalidCredentials, "Incorrect password. Please try again.")
	}
	return nil
}

// CreateAdmin creates or resets a back-office account.
func (s *Service) CreateAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return newError(ErrInvalidInput, "Email and password are required.")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	return s.repo.CreateAdmin(ctx, domain.Admin{ID: uuid.New(), Email: email, PasswordHash: string(hash)})
}

// ListUsers returns every user with the ID proof inlined as a data URI.
func (s *Service) ListUsers(ctx context.Context) ([]AdminView, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Map(users, func(u domain.User, _ int) AdminView { return toAdminView(u) }), nil
}

// DeleteUser removes a user and their ledger.
func (s *Service) DeleteUser(ctx context.Context, email string) (AdminView, error) {
	u, err := s.repo.DeleteUser(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return AdminView{}, newError(ErrNotFound, "User not found")
	}
	if err != nil {
		return AdminView{}, err
	}
	return toAdminView(u), nil
}

// IDProof returns the stored JPEG of a user.
func (s *Service) IDProof(ctx context.Context, id uuid.UUID) ([]byte, error) {
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(u.IDProofImage) == 0 {
		return nil, ErrNotFound
	}
	return u.IDProofImage, nil
}

func toAdminView(u domain.User) AdminView {
	v := AdminView{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		ContactNumber: u.ContactNumber,
		IDProofNumber: u.IDProofNumber,
		DOB:           u.DOB.Format(dobLayout),
		CreatedAt:     u.CreatedAt,
	}
	if len(u.IDProofImage) > 0 {
		v.IDProofImage = lo.ToPtr("data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(u.IDProofImage))
	}
	return v
}
