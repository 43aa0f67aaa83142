// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers and services to distinguish between different failure
// scenarios without inspecting driver-specific errors. Missing rows
// are reported as sql.ErrNoRows straight from database/sql.
package repository

import "errors"

// ErrEmailExists is returned by UserRepo.Create when the email is
// already registered. Handlers should translate this into an HTTP
// 409 response.
var ErrEmailExists = errors.New("email already exists")

// ErrConflict is returned when a delete or update cannot be
// performed because of conflicting state, such as deleting a locker
// that still has active rentings.
var ErrConflict = errors.New("conflict")
