package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrPasswordTooShort = errors.New("password must be at least 6 characters")
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 6

// DefaultSpeciality is sent when a doctor registers without one.
const DefaultSpeciality = "Médecin généraliste"

// Profile is the authenticated user as returned by /api/user/me.
type Profile struct {
	ID     ID     `json:"id"`
	UserID ID     `json:"UserId,omitempty"`
	Mail   string `json:"mail,omitempty"`
	Nom    string `json:"nom,omitempty"`
	Prenom string `json:"prenom,omitempty"`
	Role   string `json:"role,omitempty"`
}

// Identifier returns id, falling back to UserId for older backends.
func (p Profile) Identifier() string {
	if p.ID != "" {
		return p.ID.String()
	}
	return p.UserID.String()
}

// DoctorRegistration is the doctor sign-up form.
type DoctorRegistration struct {
	Mail            string `json:"mail"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"-"`
	Nom             string `json:"nom"`
	Prenom          string `json:"prenom"`
	DateNaissance   string `json:"dateNaissance"`
	Specialite      string `json:"specialite"`
}

// Validate runs the checks done before any request is issued.
func (r DoctorRegistration) Validate() error {
	if r.Password != r.ConfirmPassword {
		return ErrPasswordMismatch
	}
	if len([]rune(r.Password)) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, mail, password string) (Credentials, error) {
	var out tokenResponse
	_, err := c.do(ctx, Credentials{}, request{
		method: http.MethodPost,
		path:   "/api/auth/login",
		body:   map[string]string{"mail": mail, "password": password},
	}, &out)
	if err != nil {
		return Credentials{}, err
	}
	if out.Token == "" {
		return Credentials{}, fmt.Errorf("login response carried no token")
	}
	return Credentials{Token: out.Token}, nil
}

// RegisterDoctor validates the form and creates a doctor account. The
// returned credentials are empty when the backend does not log the user in.
func (c *Client) RegisterDoctor(ctx context.Context, reg DoctorRegistration) (Credentials, error) {
	if err := reg.Validate(); err != nil {
		return Credentials{}, err
	}
	if reg.Specialite == "" {
		reg.Specialite = DefaultSpeciality
	}

	var out tokenResponse
	_, err := c.do(ctx, Credentials{}, request{
		method: http.MethodPost,
		path:   "/api/auth/register/medecin",
		body:   reg,
	}, &out)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{Token: out.Token}, nil
}

// Me returns the profile of the token's owner.
func (c *Client) Me(ctx context.Context, creds Credentials) (Profile, error) {
	var p Profile
	_, err := c.do(ctx, creds, request{
		method: http.MethodGet,
		path:   "/api/user/me",
		auth:   true,
	}, &p)
	return p, err
}
