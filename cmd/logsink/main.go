package main

import "github.com/ramiqadoumi/go-task-agent/services/logsink/cli"

func main() { cli.Execute() }
