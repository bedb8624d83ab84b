package main

import "hackathon-gallery/project/cmd/galleryctl/cmd"

func main() {
	cmd.Execute()
}
