package config

import "encoding/base64"

// Credentials are the user name and password sent to the caster.  An empty
// user name means that no Authorization header is sent.
type Credentials struct {
	User string `json:"user" yaml:"user"`
	Pass string `json:"password" yaml:"password"`
}

// NewCredentials creates Credentials with an empty password.
func NewCredentials(user string) Credentials {
	return Credentials{User: user}
}

// WithPassword returns a copy of the credentials with the password set.
func (c Credentials) WithPassword(pass string) Credentials {
	c.Pass = pass
	return c
}

// HasUser is true if there is a user name to send.
func (c Credentials) HasUser() bool {
	return c.User != ""
}

// BasicAuth returns the value of the HTTP Basic Authorization header,
// for example "Basic dXNlcjpwYXNz".
func (c Credentials) BasicAuth() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.User+":"+c.Pass))
}

// String hides the password.
func (c Credentials) String() string {
	if !c.HasUser() {
		return "(anonymous)"
	}
	return c.User + ":********"
}
