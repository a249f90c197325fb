package main

import "github.com/dingeii/binance-signal-bot/internal/cli"

func main() {
	cli.Execute()
}
