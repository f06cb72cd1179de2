package main

import "labeler/internal/app"

func main() {
	app.Main()
}
