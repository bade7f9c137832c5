package main

import (
	"strings"

	"github.com/google/uuid"
)

func randomSecret() string {
	return strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}
