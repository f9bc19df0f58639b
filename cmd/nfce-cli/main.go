package main

import "github.com/information-sharing-networks/nfce-downloader/internal/cli"

func main() {
	cli.Execute()
}
