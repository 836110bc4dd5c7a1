package main

import (
	"github.com/eum-collab/translation-backend/internal/bootstrap"
)

func main() {
	bootstrap.Run()
}
