package userservice

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost is two steps above bcrypt.DefaultCost. Each step doubles the hashing work,
// which is paid on registration and login only.
const bcryptCost = 12

// set hashes pwd and keeps the plaintext only for the lifetime of the request.
func (p *Password) set(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcryptCost)
	if err != nil {
		return err
	}

	p.Plain = pwd
	p.hash = hash

	return nil
}

// compare reports whether pwd matches the stored hash. A mismatch is not an error.
func (p *Password) compare(pwd string) (bool, error) {
	err := bcrypt.CompareHashAndPassword(p.hash, []byte(pwd))
	if err != nil {
		switch {
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, nil
		default:
			return false, err
		}
	}

	return true, nil
}
