package config

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrInvalidConfig = errors.New("invalid configuration")
)

// inSection prefixes err with the yaml key of the section that produced it.
func inSection(key string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", key, err)
}

// flatten joins the non-nil errors. A lone error is returned as is.
func flatten(errs ...error) error {
	errs = slices.DeleteFunc(errs, func(err error) bool {
		return err == nil
	})

	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return errors.Join(errs...)
	}
}
