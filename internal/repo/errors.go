package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — запись уже существует (конфликт уникальности).
	ErrAlreadyExists = errors.New("already exists")

	// ErrVersionConflict — expected_version не совпал с версией в БД:
	// запись уже продвинул другой writer. Благоприятный сигнал конкуренции,
	// вызывающая сторона молча бросает свою попытку.
	ErrVersionConflict = errors.New("version conflict")

	// ErrInvalidState — операция невозможна в текущем состоянии заявки.
	ErrInvalidState = errors.New("invalid state")
)
