package middleware

import (
	"net/http"
	"strings"

	"wecare-backend/internal/utils"

	"github.com/gin-gonic/gin"
)

// JWTAuth проверяет Bearer-токен и кладет идентификатор, email и роль
// пользователя в контекст запроса
func JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Отсутствует токен авторизации"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Неверный формат токена"})
			c.Abort()
			return
		}

		claims, err := utils.ValidateToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Недействительный токен"})
			c.Abort()
			return
		}

		// Сервисные токены (DEVELOPER) не привязаны к пользователю
		if claims.UserID == "" && claims.Role == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Недействительный токен"})
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("user_email", claims.Email)
		c.Set("user_role", claims.Role)
		c.Next()
	}
}
