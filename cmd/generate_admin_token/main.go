package main

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"wecare-backend/internal/utils"
)

// Генерирует сервисный токен с ролью DEVELOPER для отладки
// и операторских скриптов
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Файл .env не найден, используем переменные окружения")
	}

	token, err := utils.GenerateDeveloperJWT()
	if err != nil {
		log.Fatalf("Ошибка генерации токена: %v", err)
	}

	fmt.Println(token)
}
