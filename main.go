package main

import "github.com/klytics/xlengine/cmd"

func main() {
	cmd.Execute()
}
