package main

import "go-stockmedia-download/cmd/stockmedia-downloader/cmd"

func main() {
	cmd.Execute()
}
