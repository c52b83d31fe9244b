package session

import (
	"context"
	"errors"
	"sync"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/echogram/echogram/internal/models"
	"github.com/echogram/echogram/internal/repositories"
	"github.com/echogram/echogram/pkg/apperrors"
	"github.com/echogram/echogram/validators"
)

const tokenTTL = 72 * time.Hour

// FirebaseService authenticates against Firebase for federated logins
// and bcrypt for local accounts, issuing a local JWT either way.
type FirebaseService struct {
	notifier
	profiles     repositories.ProfileRepository
	firebaseAuth *firebaseauth.Client
	jwtSecret    string
	validator    *validators.Validator

	mu      sync.Mutex
	current *Session
}

func NewFirebaseService(profiles repositories.ProfileRepository, firebaseAuth *firebaseauth.Client, jwtSecret string) *FirebaseService {
	return &FirebaseService{
		profiles:     profiles,
		firebaseAuth: firebaseAuth,
		jwtSecret:    jwtSecret,
		validator:    validators.NewValidator(),
	}
}

func (s *FirebaseService) Current(ctx context.Context) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, nil
}

func (s *FirebaseService) SignIn(ctx context.Context, email, password string) (*Session, error) {
	profile, err := s.profiles.GetProfileByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Unauthenticated("no account for " + email)
		}
		return nil, apperrors.Transient("looking up account", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(profile.Password), []byte(password)); err != nil {
		return nil, apperrors.Unauthenticated("invalid password")
	}
	return s.establish(profile)
}

func (s *FirebaseService) SignInWithFirebase(ctx context.Context, idToken string) (*Session, error) {
	token, err := s.firebaseAuth.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, apperrors.Unauthenticated("invalid Firebase ID token")
	}

	email, _ := token.Claims["email"].(string)
	name, _ := token.Claims["name"].(string)

	profile, err := s.profiles.GetProfileByFirebaseUID(ctx, token.UID)
	switch {
	case err == nil:
		// Known account; refresh the details Firebase carries.
		profile.Email = email
		if name != "" && profile.DisplayName == "" {
			profile.DisplayName = name
		}
		if err := s.profiles.UpdateProfile(ctx, profile); err != nil {
			return nil, apperrors.Transient("updating profile", err)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		profile, err = s.adoptOrProvision(ctx, token.UID, email, name)
		if err != nil {
			return nil, err
		}
	default:
		return nil, apperrors.Transient("looking up account", err)
	}

	return s.establish(profile)
}

// adoptOrProvision links an existing email account to the Firebase UID,
// or creates a fresh profile when the email is unknown too.
func (s *FirebaseService) adoptOrProvision(ctx context.Context, uid, email, name string) (*models.Profile, error) {
	profile, err := s.profiles.GetProfileByEmail(ctx, email)
	if err == nil {
		profile.FirebaseUID = uid
		if err := s.profiles.UpdateProfile(ctx, profile); err != nil {
			return nil, apperrors.Transient("linking account", err)
		}
		return profile, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Transient("looking up account", err)
	}

	profile = &models.Profile{
		Username:    email,
		DisplayName: name,
		Email:       email,
		FirebaseUID: uid,
	}
	if err := s.profiles.CreateProfile(ctx, profile); err != nil {
		return nil, apperrors.Transient("creating profile", err)
	}
	return profile, nil
}

func (s *FirebaseService) SignUp(ctx context.Context, req models.SignUpRequest) (*Session, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, apperrors.InvalidArg(err.Error())
	}

	if _, err := s.profiles.GetProfileByEmail(ctx, req.Email); err == nil {
		return nil, apperrors.Conflict("an account with this email already exists")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "hashing password", err)
	}

	profile := &models.Profile{
		Username: req.Username,
		Email:    req.Email,
		Password: string(hashed),
	}
	if err := s.profiles.CreateProfile(ctx, profile); err != nil {
		return nil, apperrors.Transient("creating profile", err)
	}
	return s.establish(profile)
}

func (s *FirebaseService) SignOut(ctx context.Context) error {
	s.mu.Lock()
	old := s.current
	s.current = nil
	s.mu.Unlock()
	if old != nil {
		s.emit(ChangeEvent{Old: old})
	}
	return nil
}

func (s *FirebaseService) establish(profile *models.Profile) (*Session, error) {
	token, err := s.generateJWT(profile)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "generating token", err)
	}
	sess := &Session{UserID: profile.ID, Token: token, Profile: profile.ToCompact()}

	s.mu.Lock()
	old := s.current
	s.current = sess
	s.mu.Unlock()

	s.emit(ChangeEvent{Old: old, New: sess})
	return sess, nil
}

func (s *FirebaseService) generateJWT(profile *models.Profile) (string, error) {
	claims := &models.JwtCustomClaims{
		UserID: profile.ID,
		Email:  profile.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}
