package util

import (
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"pocketsync-server/src/models"
)

func ValidateProfile(p string) (models.Profile, error) {
	profile := models.Profile(p)
	if !profile.Valid() {
		return "", fmt.Errorf("invalid profile %q", p)
	}
	return profile, nil
}

// ParseDate accepts YYYY-MM-DD; an empty string yields the fallback.
func ParseDate(s string, fallback civil.Date) (civil.Date, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return d, nil
}

// ParseMonth accepts YYYY-MM and returns the first day of that month.
func ParseMonth(s string) (civil.Date, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid month %q: want YYYY-MM", s)
	}
	return civil.DateOf(t), nil
}

func ValidatePositiveAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.New("amount must be greater than zero")
	}
	return nil
}

func ValidateObligation(o *models.RecurringObligation) error {
	if o.Name == "" {
		return errors.New("name is required")
	}
	if err := ValidatePositiveAmount(o.Amount); err != nil {
		return err
	}
	if !o.Frequency.Valid() {
		return fmt.Errorf("invalid frequency %q", o.Frequency)
	}
	if !o.Profile.Valid() {
		return fmt.Errorf("invalid profile %q", o.Profile)
	}
	if o.NextDueDate.IsZero() {
		return errors.New("next_due_date is required")
	}
	if o.EndDate != nil && o.EndDate.Before(o.NextDueDate) {
		return errors.New("end_date is before next_due_date")
	}
	return nil
}

func ValidateTransfer(req *models.TransferRequest) error {
	if req.FromPocketID == "" || req.ToPocketID == "" {
		return errors.New("from_pocket_id and to_pocket_id are required")
	}
	if req.FromPocketID == req.ToPocketID {
		return errors.New("cannot transfer a pocket to itself")
	}
	if !req.Profile.Valid() {
		return fmt.Errorf("invalid profile %q", req.Profile)
	}
	return ValidatePositiveAmount(req.Amount)
}
