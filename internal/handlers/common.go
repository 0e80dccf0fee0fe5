package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"wecare-backend/internal/services"
)

// respondServiceError переводит доменные ошибки в HTTP-статусы.
// Заявка вне зоны видимости пользователя выглядит как 404,
// чтобы не раскрывать существование чужих записей.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "Запись не найдена"})
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"message": "Недостаточно прав для выполнения операции"})
	case errors.Is(err, services.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
	case errors.Is(err, services.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"message": err.Error()})
	case errors.Is(err, services.ErrSchedulingConflict):
		c.JSON(http.StatusConflict, gin.H{"message": "У водителя уже есть поездка в этом интервале времени"})
	case errors.Is(err, services.ErrAlreadyRated):
		c.JSON(http.StatusConflict, gin.H{"message": "Поездка уже оценена"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Внутренняя ошибка сервера"})
	}
}

// actorFromContext собирает данные пользователя из JWT-контекста
func actorFromContext(c *gin.Context) services.Actor {
	return services.Actor{
		ID:    c.GetString("user_id"),
		Email: c.GetString("user_email"),
		Role:  c.GetString("user_role"),
	}
}
