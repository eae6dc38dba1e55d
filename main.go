/*
Renders an animated height field into an offscreen target on every worker
thread, then shows it in the window, on OpenGL or Vulkan depending on the
configuration file given as the only argument (twinrender.toml by default).
*/
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/twinrender/engine"
	"github.com/spaghettifunk/twinrender/engine/core"
	"github.com/spaghettifunk/twinrender/testbed"
)

func main() {
	path := "twinrender.toml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	cfg, err := engine.LoadConfig(path)
	if err != nil {
		core.LogFatal("%s", err)
	}

	tb := testbed.NewTestGame(cfg)

	e, err := engine.New(tb.Game)
	if err != nil {
		core.LogFatal("%s", err)
	}

	if err := e.Initialize(); err != nil {
		_ = e.Shutdown()
		core.LogFatal("%s", err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// the main loop owns the window and the context, so a signal only asks it to stop
	go func() {
		<-sigCh
		e.Stop()
	}()

	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		core.LogError("%s", err)
	}
	if runErr != nil {
		core.LogFatal("%s", runErr)
	}
}
