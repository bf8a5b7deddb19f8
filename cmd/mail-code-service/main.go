package main

import (
	"github.com/sirupsen/logrus"

	"mail-code-service/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		logrus.Fatalf("Service failed: %v", err)
	}
}
