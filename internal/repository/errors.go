package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicate indica una violación de unicidad (p. ej. email repetido).
var ErrDuplicate = errors.New("duplicate record")

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgInvalidText         = "22P02"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == pgUniqueViolation
}

// IsConstraintViolation reporta si la base rechazó la fila por una restricción.
func IsConstraintViolation(err error) bool {
	switch pgCode(err) {
	case pgUniqueViolation, pgForeignKeyViolation, pgCheckViolation:
		return true
	}
	return false
}

// IsInvalidID reporta un identificador que no es un uuid válido.
func IsInvalidID(err error) bool {
	return pgCode(err) == pgInvalidText
}
