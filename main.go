package main

import "complaintdesk/internal/app"

func main() {
	app.Main()
}
