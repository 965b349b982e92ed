package main

import (
	"os"

	"github.com/google/uuid"
)

func outputWriter() *os.File {
	return os.Stdout
}

func osHostname() (string, error) {
	return os.Hostname()
}

func newUUID() string {
	return uuid.NewString()
}
