package services

import "errors"

// Ошибки доменного слоя; обработчики переводят их в HTTP-статусы
var (
	ErrNotFound           = errors.New("запись не найдена")
	ErrForbidden          = errors.New("доступ запрещен")
	ErrValidation         = errors.New("некорректные данные запроса")
	ErrInvalidTransition  = errors.New("недопустимый переход статуса")
	ErrSchedulingConflict = errors.New("конфликт расписания водителя")
	ErrAlreadyRated       = errors.New("поездка уже оценена")
)
