package app

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode"

	shelf "github.com/otakushelf/otakushelf/internal"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 50
	minPasswordLen = 8
	maxFullNameLen = 100
	maxTitleLen    = 200
	maxNotesLen    = 1000
	maxScore       = 10.0
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", shelf.ErrBadRequest, fmt.Sprintf(format, args...))
}

func validateUsername(name string) error {
	if n := len(name); n < minUsernameLen || n > maxUsernameLen {
		return invalid("username must be %d-%d characters", minUsernameLen, maxUsernameLen)
	}
	if !usernamePattern.MatchString(name) {
		return invalid("username can only contain letters, numbers, underscores and hyphens")
	}
	return nil
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return invalid("invalid email address")
	}
	return nil
}

func validatePassword(pw string) error {
	if len(pw) < minPasswordLen {
		return invalid("password must be at least %d characters", minPasswordLen)
	}
	var lower, upper, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !lower || !upper || !digit {
		return invalid("password must contain a lowercase letter, an uppercase letter and a digit")
	}
	return nil
}

func validateFullName(name string) error {
	if len(name) > maxFullNameLen {
		return invalid("full name must be at most %d characters", maxFullNameLen)
	}
	return nil
}

func validateStatus(s shelf.WatchStatus) error {
	if !s.Valid() {
		return invalid("unknown status %q", s)
	}
	return nil
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return invalid("anime title cannot be empty")
	}
	if len(title) > maxTitleLen {
		return invalid("anime title must be at most %d characters", maxTitleLen)
	}
	return nil
}

func validatePictureURL(u string) error {
	if u != "" && !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return invalid("anime picture URL must be an http or https URL")
	}
	return nil
}

func validateScore(score *float64) error {
	if score != nil && (*score < 0 || *score > maxScore) {
		return invalid("anime score must be between 0 and %g", maxScore)
	}
	return nil
}

func validateNotes(notes string) error {
	if len(notes) > maxNotesLen {
		return invalid("notes must be at most %d characters", maxNotesLen)
	}
	return nil
}

// validateNewItem checks an item about to be added. An empty status is allowed
// and defaults to plan_to_watch.
func validateNewItem(item *shelf.WatchlistItem) error {
	if item.AnimeID <= 0 {
		return invalid("anime id must be positive")
	}
	if item.Status != "" {
		if err := validateStatus(item.Status); err != nil {
			return err
		}
	}
	for _, err := range []error{
		validateTitle(item.AnimeTitle),
		validatePictureURL(item.AnimePictureURL),
		validateScore(item.AnimeScore),
		validateNotes(item.Notes),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

func validateItemUpdate(u shelf.WatchlistUpdate) error {
	if u.AnimeTitle != nil {
		if err := validateTitle(*u.AnimeTitle); err != nil {
			return err
		}
	}
	if u.AnimePictureURL != nil {
		if err := validatePictureURL(*u.AnimePictureURL); err != nil {
			return err
		}
	}
	if u.Status != nil {
		if err := validateStatus(*u.Status); err != nil {
			return err
		}
	}
	if u.Notes != nil {
		if err := validateNotes(*u.Notes); err != nil {
			return err
		}
	}
	return validateScore(u.AnimeScore)
}
