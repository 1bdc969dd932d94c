package main

import (
	"github.com/civicworks/lexgraph/backend/internal/server"
	"github.com/civicworks/lexgraph/backend/internal/util"
	"github.com/civicworks/lexgraph/backend/pkg/logger"
	"github.com/civicworks/lexgraph/backend/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)
	logger.Init(console.New(console.Params{
		Debug: debug,
	}))

	server.Init()
}
