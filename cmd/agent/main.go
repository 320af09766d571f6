package main

import "github.com/ramiqadoumi/go-task-agent/services/agent/cli"

func main() { cli.Execute() }
