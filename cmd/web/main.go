package main

import "mealio_backend/internal/app"

func main() {
	app.Run()
}
