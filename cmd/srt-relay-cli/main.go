package main

import (
	"fmt"
	"os"

	"srtrelay-backend/cmd/srt-relay-cli/cmd"
)

func main() {
	baseUrl, ok := os.LookupEnv("SRT_RELAY_BASE_URL")
	if !ok {
		fmt.Println("You should specify the base url of the relay service in the environment variable SRT_RELAY_BASE_URL.")
		os.Exit(1)
	}
	cmd.BaseUrl = baseUrl

	cmd.Execute()
}
