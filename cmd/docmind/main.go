// Package main is the entry point for the docmind document summarization and QA service.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/docmind/cmd/docmind/app"
)

func main() {
	app.NewApp().Run()
}
