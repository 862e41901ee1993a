package main

import "github.com/andepants/buzzbox-backend/internal/app"

func main() {
	app.Run()
}
