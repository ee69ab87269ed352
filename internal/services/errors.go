// Package services defines the business logic of the intake pipeline:
// resolving sender identities to bindings, materializing normalized messages
// into tasks, and orchestrating the email channel end to end. This file
// centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing replies (templated email or Telegram text) is performed by
// the channel orchestrators.
package services

import "errors"

var (
	// ErrNotBound indicates that the sender identity has no client binding,
	// so no serviced object can be inferred.
	ErrNotBound = errors.New("sender not bound to an object")

	// ErrNoManager indicates that a binding resolved to an object without an
	// assigned manager, so there is nobody to route the task to.
	ErrNoManager = errors.New("object has no manager assigned")

	// ErrSpamSender is returned for automated sender addresses (noreply,
	// mailer-daemon and friends). The message is dropped silently.
	ErrSpamSender = errors.New("sender classified as automated")

	// ErrEmptyMessage is returned when a normalized message carries neither
	// body text nor attachments worth materializing.
	ErrEmptyMessage = errors.New("message has no content")
)
