package main

import "github.com/pkg/errors"

// keep error handling in one place (avoids importing errors in every file).
func as(err error, target any) bool { return errors.As(err, target) }

func is(err, target error) bool { return errors.Is(err, target) }
